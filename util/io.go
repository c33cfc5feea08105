package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
)

// CopyStats counts the bytes moved by [BidirectionalCopy].
type CopyStats struct {
	Received int64 // network → writer
	Sent     int64 // reader → network
}

// closeWriter is implemented by *net.TCPConn and *tls.Conn.
type closeWriter interface {
	CloseWrite() error
}

// BidirectionalCopy shuffles data between a network connection and an
// arbitrary reader/writer pair (typically stdin/stdout) until one side
// reaches EOF or the context is cancelled.  scratch, when non-empty, is
// used as the copy buffer for the network → writer direction.
func BidirectionalCopy(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer, scratch []byte) (CopyStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		received atomic.Int64
		sent     atomic.Int64
	)
	recvErr := make(chan error, 1)
	sendErr := make(chan error, 1)

	// network → writer
	go func() {
		var n int64
		var err error
		if len(scratch) > 0 {
			n, err = io.CopyBuffer(w, conn, scratch)
		} else {
			n, err = io.Copy(w, conn)
		}
		received.Add(n)
		recvErr <- err
		cancel()
	}()

	// reader → network.  A reader blocked on a terminal cannot be
	// interrupted, so this goroutine is not waited for once the
	// connection is done.
	go func() {
		n, err := io.Copy(conn, r)
		sent.Add(n)
		// Half-close so the peer sees EOF while we keep draining its
		// response on the other goroutine.
		if cw, ok := conn.(closeWriter); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		sendErr <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes
	errs := []error{<-recvErr}
	select {
	case err := <-sendErr:
		errs = append(errs, err)
	default:
	}

	stats := CopyStats{Received: received.Load(), Sent: sent.Load()}
	for _, err := range errs {
		if err != nil && !isHarmless(err) {
			return stats, err
		}
	}
	return stats, nil
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
