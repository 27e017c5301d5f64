package base

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"io"
	"os"
	"reflect"
	"strings"
	"testing"
)

// oneByteReader hands out at most one byte per Read call
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

// errReadWriter fails every call with err
type errReadWriter struct {
	err error
}

func (e errReadWriter) Read([]byte) (int, error)  { return 0, e.err }
func (e errReadWriter) Write([]byte) (int, error) { return 0, e.err }

func TestFrameRoundTrip(t *testing.T) {
	version := common.Version{Major: 0, Minor: 3, Patch: 7}

	for _, size := range []int{0, 1, 21, 4096, directReadLimit, directReadLimit + 12345} {
		t.Run(fmt.Sprintf("%d bytes", size), func(t *testing.T) {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i * 31)
			}

			var buf bytes.Buffer
			if err := WriteFrame(&buf, version, payload); err != nil {
				t.Fatalf("Failed to write frame: %v", err)
			}
			if buf.Len() != HeaderSize+size {
				t.Fatalf("Expected %d bytes on the wire, got %d", HeaderSize+size, buf.Len())
			}
			if !bytes.Equal(buf.Bytes(), AppendFrame(nil, version, payload)) {
				t.Fatalf("WriteFrame and AppendFrame differ")
			}

			gotVersion, got, err := ReadFrame(&oneByteReader{data: buf.Bytes()}, 0)
			if err != nil {
				t.Fatalf("Failed to read frame: %v", err)
			}
			if gotVersion != version {
				t.Errorf("Expected version %s, got %s", version, gotVersion)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("Payload mismatch for %d bytes", size)
			}
			if got == nil {
				t.Errorf("Expected non-nil payload")
			}
		})
	}
}

func TestFrameLayout(t *testing.T) {
	got := AppendFrame(nil, common.Version{Major: 0, Minor: 1, Patch: 0}, []byte{0xAA, 0xBB, 0xCC})
	want := []byte{
		'A', 'H', 'N', 'L', 'I', 'C', 'H', ';', // magic
		0x00,       // major
		0x01, 0x00, // minor
		0x00, 0x00, // patch
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // length
		0xAA, 0xBB, 0xCC,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unexpected frame:\n got % x\nwant % x", got, want)
	}
}

func TestReadFrameErrors(t *testing.T) {
	valid := AppendFrame(nil, common.ProtocolVersion, []byte("payload"))
	badMagic := append([]byte("HTTP/1.1"), valid[8:]...)

	testCases := []struct {
		name     string
		input    []byte
		maxSize  uint64
		sentinel error
		contains string
	}{
		{"Empty stream", nil, 0, common.ErrProtocol, "socket connection broken"},
		{"Bad magic", badMagic, 0, common.ErrProtocol, "unexpected peer"},
		{"Partial magic", valid[:5], 0, common.ErrProtocol, "mid-frame"},
		{"Partial header", valid[:15], 0, common.ErrProtocol, "mid-frame"},
		{"Partial payload", valid[:len(valid)-2], 0, common.ErrProtocol, "mid-frame"},
		{"Too large", valid, 3, common.ErrProtocol, "exceeds limit"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadFrame(bytes.NewReader(tc.input), tc.maxSize)
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("Expected %v, got %v", tc.sentinel, err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("Expected error to contain %q, got %q", tc.contains, err)
			}
		})
	}

	// the limit applies to the payload only
	if _, _, err := ReadFrame(bytes.NewReader(valid), uint64(len("payload"))); err != nil {
		t.Errorf("Payload at the limit must be accepted: %v", err)
	}
}

// recordingWriter keeps every Write call separately
type recordingWriter struct {
	writes [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func TestWriteFrameCalls(t *testing.T) {
	testCases := []struct {
		name   string
		size   int
		writes int
	}{
		{"Empty payload", 0, 1},
		{"Small payload", 100, 1},
		{"At coalesce limit", coalesceLimit, 1},
		{"Above coalesce limit", coalesceLimit + 1, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x5a}, tc.size)
			w := &recordingWriter{}
			if err := WriteFrame(w, common.ProtocolVersion, payload); err != nil {
				t.Fatalf("Failed to write frame: %v", err)
			}
			if len(w.writes) != tc.writes {
				t.Fatalf("Expected %d write calls, got %d", tc.writes, len(w.writes))
			}
			if got := bytes.Join(w.writes, nil); !bytes.Equal(got, AppendFrame(nil, common.ProtocolVersion, payload)) {
				t.Errorf("Written bytes differ from AppendFrame")
			}
		})
	}
}

func TestFrameIOErrors(t *testing.T) {
	_, _, err := ReadFrame(errReadWriter{err: os.ErrDeadlineExceeded}, 0)
	if !errors.Is(err, common.ErrConnection) || !errors.Is(err, common.ErrTimeout) {
		t.Errorf("Expected connection timeout, got %v", err)
	}

	err = WriteFrame(errReadWriter{err: errors.New("connection reset")}, common.ProtocolVersion, []byte{1})
	if !errors.Is(err, common.ErrConnection) {
		t.Errorf("Expected connection error, got %v", err)
	}
	if errors.Is(err, common.ErrTimeout) {
		t.Errorf("Did not expect a timeout, got %v", err)
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil), 0)
	if !IsExpectedCloseError(err) {
		t.Errorf("A peer closing between frames is a normal close: %v", err)
	}
	if IsExpectedCloseError(nil) || IsExpectedCloseError(errors.New("boom")) {
		t.Errorf("Unexpected classification")
	}
}
