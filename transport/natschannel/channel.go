// Package natschannel implements query.Channel over a NATS request subject:
// one Channel per inbound request, replying with one or more frames on the
// request's reply subject. A client that wants a multi-frame streamed
// response subscribes to its own reply subject before publishing the
// request, the conventional NATS fan-in pattern for streamed replies.
package natschannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/c360/traversalproc/internal/query"
	"github.com/c360/traversalproc/natsclient"
	"github.com/c360/traversalproc/pkg/buffer"
)

// Channel adapts one NATS reply subject to query.Channel. Unlike a
// persistent websocket connection, a NATS channel has no backing socket
// buffer to signal pressure from — IsWritable instead reflects the depth of
// this request's own outbound queue, draining asynchronously onto the
// client's publisher.
type Channel struct {
	client       *natsclient.Client
	replySubject string
	binary       bool
	queue        buffer.Buffer[outbound]
	logger       *slog.Logger

	done chan struct{}
}

type outbound struct {
	frame    *query.Frame
	response *query.ResponseMessage
}

// New builds a Channel that publishes frames and responses for one request
// onto replySubject via client. queueDepth bounds how many frames may be
// pending publish before IsWritable reports false.
func New(client *natsclient.Client, replySubject string, queueDepth int, binary bool, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	queue, err := buffer.NewCircularBuffer[outbound](queueDepth, buffer.WithOverflowPolicy[outbound](buffer.DropNewest))
	if err != nil {
		return nil, err
	}

	ch := &Channel{client: client, replySubject: replySubject, binary: binary, queue: queue, logger: logger, done: make(chan struct{})}
	go ch.drain()
	return ch, nil
}

func (c *Channel) IsWritable() bool { return !c.queue.IsFull() }
func (c *Channel) UseBinary() bool  { return c.binary }

func (c *Channel) WriteFrame(f query.Frame) error {
	return c.queue.Write(outbound{frame: &f})
}

func (c *Channel) WriteResponse(r query.ResponseMessage) error {
	return c.queue.Write(outbound{response: &r})
}

// Close stops this channel's publish loop. It does not affect the
// underlying shared NATS connection.
func (c *Channel) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	_ = c.queue.Close()
	return nil
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

		data, err := encode(item)
		if err != nil {
			c.logger.Error("failed to encode outbound nats reply", "subject", c.replySubject, "error", err)
			continue
		}

		if err := c.client.Publish(context.Background(), c.replySubject, data); err != nil {
			c.logger.Warn("nats publish failed, closing channel", "subject", c.replySubject, "error", err)
			_ = c.Close()
			return
		}
	}
}

func encode(item outbound) ([]byte, error) {
	switch {
	case item.frame != nil:
		return item.frame.Data, nil
	case item.response != nil:
		return json.Marshal(item.response)
	default:
		return nil, nil
	}
}
