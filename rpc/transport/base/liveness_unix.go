//go:build unix

package base

import (
	"errors"
	"golang.org/x/sys/unix"
	"net"
	"syscall"
	"time"
)

// connAlive peeks one byte from the socket without blocking and without
// consuming it. An idle connection must have nothing to read: EOF means the
// peer closed it, pending bytes mean the stream is out of sync. Both make
// the connection unusable.
func connAlive(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	// an expired deadline from the last exchange would fail the read early
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return false
	}

	alive := false
	var buf [1]byte
	err = raw.Read(func(fd uintptr) bool {
		n, _, rerr := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(rerr, unix.EAGAIN) || errors.Is(rerr, unix.EWOULDBLOCK):
			alive = true
		case rerr != nil:
			alive = false
		case n == 0:
			// orderly shutdown
			alive = false
		default:
			// unsolicited data
			alive = false
		}
		return true
	})
	if err != nil {
		return false
	}
	return alive
}
