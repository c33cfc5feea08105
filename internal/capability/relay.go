package capability

import (
	"context"

	"httplink/internal/session"
	"httplink/util"
)

// Relay copies data bidirectionally between the connection and the
// session's stdin/stdout: the default interactive / pipe mode.
type Relay struct{}

// Handle shuttles bytes between the connection and the local I/O
// endpoints until one side closes or the context is cancelled.  The
// connection's I/O mutex is held for the duration and its scratch
// buffer carries the inbound direction.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	conn := sess.Conn
	conn.Lock()
	defer conn.Unlock()

	stats, err := util.BidirectionalCopy(ctx, conn.NetConn(), sess.Stdin, sess.Stdout, conn.Buffer())
	sess.Metrics.BytesReceived(stats.Received)
	sess.Metrics.BytesSent(stats.Sent)
	sess.Logger.Verbose("relay done: %d bytes received, %d sent", stats.Received, stats.Sent)
	return err
}
