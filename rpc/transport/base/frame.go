package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"io"
	"math"
	"net"
	"os"
	"syscall"
)

// --------------------------------------------------------------------------
// Frame Layout
// --------------------------------------------------------------------------

// Every frame has the format:
// - 8 bytes: magic "AHNLICH;"
// - 1 byte:  version major
// - 2 bytes: version minor (little endian)
// - 2 bytes: version patch (little endian)
// - 8 bytes: payload length (uint64, little endian)
// - N bytes: payload
const (
	magicSize   = 8
	versionSize = 5
	lengthSize  = 8

	// HeaderSize is the number of bytes in front of every payload
	HeaderSize = magicSize + versionSize + lengthSize
)

// Magic is the fixed tag every frame starts with
var Magic = [magicSize]byte{'A', 'H', 'N', 'L', 'I', 'C', 'H', ';'}

// payloads up to this size are read into a buffer of the advertised length,
// larger ones grow as data arrives
const directReadLimit = 64 * 1024

// payloads up to this size are copied behind the header before writing
const coalesceLimit = 64 * 1024

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// appendHeader appends the frame header for a payload of n bytes to dst
func appendHeader(dst []byte, version common.Version, n uint64) []byte {
	dst = append(dst, Magic[:]...)
	dst = append(dst, version.Major)
	dst = binary.LittleEndian.AppendUint16(dst, version.Minor)
	dst = binary.LittleEndian.AppendUint16(dst, version.Patch)
	return binary.LittleEndian.AppendUint64(dst, n)
}

// AppendFrame appends the complete frame (header and payload) to dst
func AppendFrame(dst []byte, version common.Version, payload []byte) []byte {
	dst = appendHeader(dst, version, uint64(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes a frame to w. Frames up to coalesceLimit bytes are copied
// into one buffer and written with a single Write call. Larger frames are
// handed over as header and payload, which a *net.TCPConn or *net.UnixConn
// sends with writev; other writers see two Write calls.
func WriteFrame(w io.Writer, version common.Version, payload []byte) error {
	if len(payload) <= coalesceLimit {
		frame := AppendFrame(make([]byte, 0, HeaderSize+len(payload)), version, payload)
		if _, err := w.Write(frame); err != nil {
			return ioError("write frame", err)
		}
		return nil
	}

	header := appendHeader(make([]byte, 0, HeaderSize), version, uint64(len(payload)))
	b := net.Buffers{header, payload}
	if _, err := b.WriteTo(w); err != nil {
		return ioError("write frame", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// ReadFrame reads exactly one frame from r and returns the version from its
// header and the payload. maxSize limits the accepted payload length, 0 means
// no limit.
//
// A peer that closed the connection before sending anything is reported as a
// protocol error ("socket connection broken"), a wrong magic as "unexpected
// peer" before the length is looked at. Network failures (timeouts, resets)
// are connection errors.
func ReadFrame(r io.Reader, maxSize uint64) (common.Version, []byte, error) {
	var header [HeaderSize]byte

	// magic
	n, err := io.ReadFull(r, header[:magicSize])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return common.Version{}, nil, common.NewError(common.KindProtocol, "read frame", fmt.Errorf("socket connection broken: %w", io.EOF))
		}
		return common.Version{}, nil, readError("read frame", err)
	}
	if !bytes.Equal(header[:magicSize], Magic[:]) {
		return common.Version{}, nil, common.NewError(common.KindProtocol, "read frame",
			fmt.Errorf("unexpected peer: bad magic % x", header[:magicSize]))
	}

	// version + length
	if _, err := io.ReadFull(r, header[magicSize:]); err != nil {
		return common.Version{}, nil, readError("read frame header", err)
	}
	version := common.Version{
		Major: header[magicSize],
		Minor: binary.LittleEndian.Uint16(header[magicSize+1:]),
		Patch: binary.LittleEndian.Uint16(header[magicSize+3:]),
	}
	length := binary.LittleEndian.Uint64(header[magicSize+versionSize:])

	if maxSize > 0 && length > maxSize {
		return version, nil, common.NewError(common.KindProtocol, "read frame",
			fmt.Errorf("payload of %d bytes exceeds limit of %d bytes", length, maxSize))
	}
	if length > math.MaxInt64 {
		return version, nil, common.NewError(common.KindProtocol, "read frame",
			fmt.Errorf("invalid payload length %d", length))
	}

	// If no data, return empty slice
	if length == 0 {
		return version, []byte{}, nil
	}

	if length <= directReadLimit {
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return version, nil, readError("read frame payload", err)
		}
		return version, payload, nil
	}

	// the advertised length is not trusted for allocation
	var buf bytes.Buffer
	buf.Grow(directReadLimit)
	if _, err := io.CopyN(&buf, r, int64(length)); err != nil {
		return version, nil, readError("read frame payload", err)
	}
	return version, buf.Bytes(), nil
}

// --------------------------------------------------------------------------
// Error classification
// --------------------------------------------------------------------------

// readError classifies an error that happened after the first byte of a
// frame was received: an early EOF breaks the framing contract
func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return common.NewError(common.KindProtocol, op, fmt.Errorf("connection closed mid-frame: %w", err))
	}
	return ioError(op, err)
}

// ioError wraps a network error into a connection error, timeouts wrap common.ErrTimeout
func ioError(op string, err error) error {
	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}
	if isTimeout(err) {
		return common.NewError(common.KindConnection, op, fmt.Errorf("%w: %v", common.ErrTimeout, err))
	}
	return common.NewError(common.KindConnection, op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsExpectedCloseError reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe or connection reset. These are not
// worth an error log line.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
