package query

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Handler runs a single op code's pipeline against a request-scoped
// Context and returns the *OpError it terminated with, if any. Eval is
// the only Handler this package ships; SelectOther (below) is the
// subclass-extensibility hook spec §9 calls out, letting an embedder
// register additional op codes without modifying Dispatcher itself.
type Handler func(ctx context.Context, reqCtx *Context) *OpError

// Dispatcher is C5: the entry point for a decoded RequestMessage. It
// validates args shape and semantics, applies a per-channel rate limit,
// selects a Handler by op code (falling back to SelectOther), and runs
// it.
type Dispatcher struct {
	handlers    map[Op]Handler
	selectOther func(Op) (Handler, bool)
	limiters    map[Channel]*rate.Limiter
	limit       rate.Limit
	burst       int
	logger      *slog.Logger
}

// NewDispatcher builds a Dispatcher with the built-in "eval" handler
// registered. A limit of zero or less disables rate limiting.
func NewDispatcher(evaluator *Evaluator, limit rate.Limit, burst int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handlers: make(map[Op]Handler),
		limiters: make(map[Channel]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		logger:   logger,
	}
	d.handlers[OpEval] = func(ctx context.Context, reqCtx *Context) *OpError {
		if err := validateEvalMessage(reqCtx.Message); err != nil {
			return err
		}
		return evaluator.Evaluate(ctx, reqCtx)
	}
	return d
}

// RegisterHandler adds or replaces the handler for an op code.
func (d *Dispatcher) RegisterHandler(op Op, h Handler) {
	d.handlers[op] = h
}

// SetOtherSelector installs the spec §9 "subclass extensibility" hook:
// a fallback consulted when op isn't in the static handler map.
func (d *Dispatcher) SetOtherSelector(fn func(Op) (Handler, bool)) {
	d.selectOther = fn
}

// Dispatch is the Dispatcher's sole entry point (spec §4.1). It builds
// the request Context, validates, rate-limits, and runs the selected
// handler, writing a terminal error response itself for every failure
// that occurs before a Handler takes over responsibility for the
// channel (malformed request, invalid shape, rate limit exceeded).
func (d *Dispatcher) Dispatch(ctx context.Context, ch Channel, msg RequestMessage, settings Settings, gm GraphManager) *OpError {
	reqCtx := NewContext(ch, msg, settings, gm)

	if err := validateArgsShape(msg); err != nil {
		d.writeFailure(reqCtx, err)
		return err
	}

	if !d.allow(ch) {
		err := invalidArgumentsf(msg.RequestID, "request rejected: eval submission rate limit exceeded for this channel")
		d.writeFailure(reqCtx, err)
		return err
	}

	handler, ok := d.handlers[msg.Op]
	if !ok && d.selectOther != nil {
		handler, ok = d.selectOther(msg.Op)
	}
	if !ok {
		err := malformedRequestf(msg.RequestID, "unknown op code [%s] for request %+v", msg.Op, msg)
		d.writeFailure(reqCtx, err)
		return err
	}

	opErr := handler(ctx, reqCtx)
	if opErr != nil {
		d.logger.Warn("op failed", "requestId", msg.RequestID, "op", msg.Op, "code", opErr.Code, "error", opErr)
	}
	return opErr
}

func (d *Dispatcher) writeFailure(reqCtx *Context, opErr *OpError) {
	if !reqCtx.markTerminal() {
		return
	}
	resp := BuildResponse(reqCtx.Message.RequestID).WithCode(opErr.Code).WithStatusMessage(opErr.Error())
	if err := reqCtx.Channel.WriteResponse(resp); err != nil {
		d.logger.Error("could not write terminal error response", "requestId", reqCtx.Message.RequestID, "error", err)
	}
}

func (d *Dispatcher) allow(ch Channel) bool {
	if d.limit <= 0 {
		return true
	}
	limiter, ok := d.limiters[ch]
	if !ok {
		limiter = rate.NewLimiter(d.limit, d.burst)
		d.limiters[ch] = limiter
	}
	return limiter.Allow()
}
