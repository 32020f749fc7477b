package query

import (
	"context"
	"log/slog"
)

// Evaluator is C4: it submits a validated eval message to the scripting
// Engine, waits for the future to complete (or time out, or the request
// context to be cancelled), and on success hands the result to the
// Streamer. On any failure it rolls back a managed transaction and
// writes the single terminal error response itself (spec §4.2).
type Evaluator struct {
	engine   Engine
	streamer *Streamer
	tx       *TransactionCoordinator
	managed  bool
	hook     *MetricsHook
	logger   *slog.Logger
}

// NewEvaluator builds an Evaluator. tx may be nil when managed is false;
// hook may be nil to disable metrics recording.
func NewEvaluator(engine Engine, streamer *Streamer, tx *TransactionCoordinator, managed bool, hook *MetricsHook, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{engine: engine, streamer: streamer, tx: tx, managed: managed, hook: hook, logger: logger}
}

// Evaluate runs the full eval op for one request: submit, await, stream,
// complete. It returns the *OpError from whichever stage failed (nil on
// full success); the caller (the Dispatcher) is only responsible for
// logging it, since Evaluate has already written the terminal response.
func (e *Evaluator) Evaluate(ctx context.Context, reqCtx *Context) *OpError {
	msg := reqCtx.Message

	stop := e.hook.startTimer()
	defer stop()

	gremlin, _ := msg.Gremlin()
	future, err := e.engine.Eval(ctx, gremlin, msg.Language(), msg.Bindings())
	if err != nil {
		return e.fail(ctx, reqCtx, scriptEvaluationErr(msg.RequestID, err))
	}

	timeoutCh := newTimeoutTimer(reqCtx.Settings.EvaluationTimeout)
	defer timeoutCh.Stop()

	select {
	case <-ctx.Done():
		return e.fail(ctx, reqCtx, interruptedErr(msg.RequestID))

	case <-timeoutCh.C:
		return e.fail(ctx, reqCtx, evaluationTimeoutErr(msg.RequestID, ctx.Err()))

	case result, ok := <-future:
		if !ok {
			return e.fail(ctx, reqCtx, unexpectedErr(msg.RequestID, errClosedFuture))
		}
		if result.Err != nil {
			if result.Timeout {
				return e.fail(ctx, reqCtx, evaluationTimeoutErr(msg.RequestID, result.Err))
			}
			return e.fail(ctx, reqCtx, scriptEvaluationErr(msg.RequestID, result.Err))
		}

		it := AsIterator(result.Value)
		if streamErr := e.streamer.Run(ctx, reqCtx, it); streamErr != nil {
			return e.fail(ctx, reqCtx, streamErr)
		}
		e.hook.recordSuccess()
		return nil
	}
}

func (e *Evaluator) fail(ctx context.Context, reqCtx *Context, opErr *OpError) *OpError {
	msg := reqCtx.Message

	if e.managed && opErr.ManagedRollback {
		if err := e.tx.AttemptRollback(ctx, msg); err != nil {
			e.logger.Error("rollback after failed evaluation also failed",
				"requestId", msg.RequestID, "error", err)
		}
	}

	e.hook.recordFailure(opErr.Code)

	if reqCtx.markTerminal() {
		resp := BuildResponse(msg.RequestID).WithCode(opErr.Code).WithStatusMessage(opErr.Error())
		if err := reqCtx.Channel.WriteResponse(resp); err != nil {
			e.logger.Error("could not write terminal error response",
				"requestId", msg.RequestID, "error", err)
		}
	}

	return opErr
}
