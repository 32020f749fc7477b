package service

import (
	"context"
	"net/http"

	"github.com/c360/traversalproc/config"
	"github.com/c360/traversalproc/internal/query"
	"github.com/c360/traversalproc/transport/codec"
	"github.com/c360/traversalproc/transport/natschannel"
	"github.com/c360/traversalproc/transport/wschannel"
)

// serveNATS subscribes to the configured request subject and builds one
// natschannel.Channel per inbound message, replying on the subject named
// by the request's RequestID, and submits
// the decoded request to the worker pool rather than blocking the NATS
// dispatch goroutine on evaluation.
func (s *Server) serveNATS(ctx context.Context, raw *config.Config) error {
	subject := raw.Transport.NATS.RequestSubject
	queueDepth := raw.Transport.NATS.QueueDepth
	if queueDepth <= 0 {
		queueDepth = 64
	}

	return s.nats.Subscribe(ctx, subject, func(reqCtx context.Context, data []byte) {
		msg, err := codec.DecodeRequestMessage(data)
		if err != nil {
			s.logger.Warn("discarding malformed NATS request", "error", err)
			return
		}

		ch, err := natschannel.New(s.nats, msg.RequestID, queueDepth, false, s.logger)
		if err != nil {
			s.logger.Error("failed to build NATS reply channel", "error", err)
			return
		}

		if err := s.pool.Submit(requestWork{ctx: reqCtx, ch: ch, msg: msg}); err != nil {
			s.logger.Warn("dropping request, worker pool saturated", "request_id", msg.RequestID, "error", err)
		}
	})
}

// serveWebSocket runs an HTTP server that upgrades every connection to a
// wschannel.Channel and drives wschannel.Channel.ReadLoop, which decodes
// inbound frames and hands each one to onRequest for submission to the
// worker pool.
func (s *Server) serveWebSocket(ctx context.Context, raw *config.Config) error {
	path := raw.Transport.WebSocket.Path
	if path == "" {
		path = "/gremlin"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}

		queueDepth := raw.Transport.WebSocket.QueueDepth
		if queueDepth <= 0 {
			queueDepth = 64
		}

		ch, err := wschannel.New(conn, queueDepth, raw.Transport.WebSocket.Binary, s.logger)
		if err != nil {
			s.logger.Error("failed to build websocket channel", "error", err)
			_ = conn.Close()
			return
		}

		connCtx := r.Context()
		ch.ReadLoop(connCtx, codec.DecodeRequestMessage, func(msg query.RequestMessage) {
			if err := s.pool.Submit(requestWork{ctx: connCtx, ch: ch, msg: msg}); err != nil {
				s.logger.Warn("dropping request, worker pool saturated", "request_id", msg.RequestID, "error", err)
			}
		})
	})

	s.httpServer = &http.Server{Addr: raw.Transport.WebSocket.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
