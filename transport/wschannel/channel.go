// Package wschannel implements query.Channel over a gorilla/websocket
// connection: one Channel per connected client, with a bounded outbound
// queue that gives the Result Streamer a real backpressure signal
// instead of the teacher's unimplemented "slow" TODO.
package wschannel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/traversalproc/internal/query"
	"github.com/c360/traversalproc/pkg/buffer"
)

// writeTimeout bounds a single frame write to the underlying connection.
const writeTimeout = 10 * time.Second

// outbound is one queued write: either a serialized Frame or a control
// ResponseMessage, never both.
type outbound struct {
	frame    *query.Frame
	response *query.ResponseMessage
}

// Channel adapts one websocket.Conn to query.Channel. Writes are queued
// on a bounded buffer and drained by a single writer goroutine, so
// IsWritable reflects real queue pressure rather than socket-level state
// gorilla doesn't expose.
type Channel struct {
	conn   *websocket.Conn
	queue  buffer.Buffer[outbound]
	binary bool
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New wraps conn in a Channel with the given outbound queue depth. binary
// selects whether Frame payloads were produced by a binary serializer
// (and so must be written as websocket.BinaryMessage).
func New(conn *websocket.Conn, queueDepth int, binary bool, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	queue, err := buffer.NewCircularBuffer[outbound](queueDepth, buffer.WithOverflowPolicy[outbound](buffer.DropNewest))
	if err != nil {
		return nil, err
	}

	ch := &Channel{conn: conn, queue: queue, binary: binary, logger: logger, done: make(chan struct{})}
	go ch.drain()
	return ch, nil
}

// IsWritable reports whether the outbound queue has room — the signal
// the Result Streamer polls for backpressure (spec §4.3).
func (c *Channel) IsWritable() bool {
	return !c.queue.IsFull()
}

// UseBinary reports whether this channel was negotiated for binary frames.
func (c *Channel) UseBinary() bool {
	return c.binary
}

// WriteFrame enqueues a serialized Frame for asynchronous write. The
// queue's DropNewest policy means a frame submitted to an already-full
// queue is itself dropped rather than evicting an older, already-promised
// frame — IsWritable should have already told the Streamer to wait.
func (c *Channel) WriteFrame(f query.Frame) error {
	return c.queue.Write(outbound{frame: &f})
}

// WriteResponse enqueues a control response (errors, NO_CONTENT).
func (c *Channel) WriteResponse(r query.ResponseMessage) error {
	return c.queue.Write(outbound{response: &r})
}

// Close stops the writer goroutine and closes the underlying connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.queue.Close()
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) drain() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		item, ok := c.queue.Read()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		if err := c.write(item); err != nil {
			c.logger.Warn("websocket write failed, closing channel", "error", err)
			_ = c.Close()
			return
		}
	}
}

func (c *Channel) write(item outbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	messageType := websocket.TextMessage
	if c.binary {
		messageType = websocket.BinaryMessage
	}

	switch {
	case item.frame != nil:
		return c.conn.WriteMessage(messageType, item.frame.Data)
	case item.response != nil:
		return c.conn.WriteJSON(item.response)
	default:
		return nil
	}
}

// ReadLoop blocks reading client-submitted request frames and invoking
// onRequest for each decoded RequestMessage, until the connection closes
// or ctx is cancelled. Each frame is turned into a RequestMessage by the
// decode function the caller passes; a frame that fails to decode is
// logged and skipped.
func (c *Channel) ReadLoop(ctx context.Context, decode func([]byte) (query.RequestMessage, error), onRequest func(query.RequestMessage)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.Close()
			return
		}

		msg, err := decode(data)
		if err != nil {
			c.logger.Warn("discarding unparseable request frame", "error", err)
			continue
		}
		onRequest(msg)
	}
}
