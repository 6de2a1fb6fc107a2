// internal/tascam/dispatch.go
package tascam

import (
	"time"

	"go.uber.org/zap"

	"tascam-bridge/internal/model"
	"tascam-bridge/internal/protocol"
)

// Dispatcher funnels every outbound command through a single ordered queue
// to the connection's write path. This is the only write path, so commands
// hit the wire in issue order even when called from many goroutines.
//
// The protocol carries no per-command acknowledgment: a successful Send
// means "frame handed to the socket", never "device complied". Callers that
// need confirmation compose Send with a Watch for the expected status string.
type Dispatcher struct {
	conn     *Conn
	logger   *zap.Logger
	requests chan dispatchRequest
	done     chan struct{}

	// OnDispatch observes every accepted command after its frame reached
	// the socket. Used for the optional command history sink.
	OnDispatch func(model.CommandRequest)
}

type dispatchRequest struct {
	frame  []byte
	result chan error
}

// NewDispatcher creates a dispatcher bound to one connection
func NewDispatcher(conn *Conn, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		conn:     conn,
		logger:   logger.With(zap.String("component", "dispatcher")),
		requests: make(chan dispatchRequest, 32),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Send encodes a friendly alias or raw protocol string and queues it for the
// wire. It fails immediately with ErrNotConnected when the session is down;
// it never blocks waiting for a reconnect and never retries a lost frame.
func (d *Dispatcher) Send(command string) error {
	if d.conn.State() != StateConnected {
		return ErrNotConnected
	}

	frame := protocol.Encode(command)
	req := dispatchRequest{frame: frame, result: make(chan error, 1)}

	select {
	case d.requests <- req:
	case <-d.done:
		return ErrNotConnected
	}

	err := <-req.result
	if err != nil {
		d.logger.Warn("Command not delivered",
			zap.String("command", command),
			zap.Error(err),
		)
		return err
	}

	d.logger.Debug("Command dispatched", zap.String("command", command))
	if d.OnDispatch != nil {
		d.OnDispatch(model.CommandRequest{
			Command:  command,
			Frame:    string(frame),
			IssuedAt: time.Now(),
		})
	}
	return nil
}

// Close stops the dispatch loop. Queued requests are rejected.
func (d *Dispatcher) Close() {
	close(d.done)
}

// run drains the queue one frame at a time, preserving issue order.
func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			for {
				select {
				case req := <-d.requests:
					req.result <- ErrNotConnected
				default:
					return
				}
			}
		case req := <-d.requests:
			req.result <- d.conn.Write(req.frame)
		}
	}
}
