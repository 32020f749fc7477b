// Package remote implements query.Engine by delegating evaluation to a
// remote service over NATS request/reply, for deployments where the actual
// Gremlin/Groovy engine runs out-of-process from the query processor.
package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/c360/traversalproc/internal/query"
	"github.com/c360/traversalproc/natsclient"
)

// wireRequest is the JSON envelope published to the remote evaluator.
type wireRequest struct {
	Script   string         `json:"script"`
	Language string         `json:"language"`
	Bindings map[string]any `json:"bindings"`
}

// wireResponse is the JSON envelope the remote evaluator replies with.
// Exactly one of Result/Error is meaningful.
type wireResponse struct {
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// Engine requests evaluation on subject and waits up to requestTimeout for
// a reply, translating it into a query.EvalResult.
type Engine struct {
	client         *natsclient.Client
	subject        string
	requestTimeout time.Duration
}

// New builds a remote Engine publishing eval requests to subject via client.
func New(client *natsclient.Client, subject string, requestTimeout time.Duration) *Engine {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Engine{client: client, subject: subject, requestTimeout: requestTimeout}
}

// Eval implements query.Engine. The returned channel completes with exactly
// one EvalResult once the remote reply arrives, the request times out, or
// ctx is cancelled.
func (e *Engine) Eval(ctx context.Context, script, language string, bindings map[string]any) (<-chan query.EvalResult, error) {
	conn := e.client.GetConnection()
	if conn == nil {
		return nil, natsclient.ErrNotConnected
	}

	payload, err := json.Marshal(wireRequest{Script: script, Language: language, Bindings: bindings})
	if err != nil {
		return nil, fmt.Errorf("remote: marshaling eval request: %w", err)
	}

	out := make(chan query.EvalResult, 1)

	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()

		msg, err := conn.RequestWithContext(reqCtx, e.subject, payload)
		if err != nil {
			out <- query.EvalResult{Err: fmt.Errorf("remote: request to %q failed: %w", e.subject, err), Timeout: stderrors.Is(err, context.DeadlineExceeded)}
			return
		}

		var resp wireResponse
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			out <- query.EvalResult{Err: fmt.Errorf("remote: decoding reply: %w", err)}
			return
		}
		if resp.Error != "" {
			out <- query.EvalResult{Err: fmt.Errorf("remote: %s", resp.Error), Timeout: resp.Timeout}
			return
		}

		out <- query.EvalResult{Value: resp.Result}
	}()

	return out, nil
}
