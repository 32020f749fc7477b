package query

import (
	stderrors "errors"
	"fmt"

	"github.com/c360/traversalproc/errors"
)

// Sentinel causes for the eight error kinds in spec §7. These are the
// values errors.Is should match against; OpError wraps one of these with
// request-scoped context and a ResponseStatusCode.
var (
	ErrMalformedRequest  = stderrors.New("malformed request")
	ErrInvalidArguments  = stderrors.New("invalid request arguments")
	ErrScriptEvaluation  = stderrors.New("script evaluation failed")
	ErrEvaluationTimeout = stderrors.New("evaluation future timed out")
	ErrStreamingTimeout  = stderrors.New("streaming exceeded serializedResponseTimeout")
	ErrSerialization     = stderrors.New("result serialization failed")
	ErrInterrupted       = stderrors.New("worker interrupted")
	ErrUnexpected        = stderrors.New("unexpected processor error")
)

// OpError is the error type every code path in this package returns. It
// carries everything the pipeline needs to write a terminal response:
// which request it belongs to, which status code it surfaces as, and
// whether the caller must roll back a managed transaction.
type OpError struct {
	RequestID       string
	Code            ResponseStatusCode
	ManagedRollback bool
	cause           error
}

func (e *OpError) Error() string {
	return e.cause.Error()
}

// Unwrap exposes the sentinel cause so errors.Is(err, ErrInvalidArguments)
// and friends work against a returned *OpError.
func (e *OpError) Unwrap() error {
	return e.cause
}

func newOpError(requestID string, code ResponseStatusCode, rollback bool, cause error) *OpError {
	return &OpError{RequestID: requestID, Code: code, ManagedRollback: rollback, cause: cause}
}

func malformedRequestf(requestID, format string, args ...any) *OpError {
	cause := errors.WrapInvalid(fmt.Errorf(format, args...), "Dispatcher", "select", "op code selection")
	return newOpError(requestID, StatusMalformedRequest, false, joinCause(ErrMalformedRequest, cause))
}

func invalidArgumentsf(requestID, format string, args ...any) *OpError {
	cause := errors.WrapInvalid(fmt.Errorf(format, args...), "Dispatcher", "validateEvalMessage", "argument validation")
	return newOpError(requestID, StatusInvalidArguments, false, joinCause(ErrInvalidArguments, cause))
}

func scriptEvaluationErr(requestID string, cause error) *OpError {
	wrapped := errors.WrapFatal(cause, "Evaluator", "onCompletion", "engine reported failure")
	return newOpError(requestID, StatusScriptEvaluation, true, joinCause(ErrScriptEvaluation, wrapped))
}

func evaluationTimeoutErr(requestID string, cause error) *OpError {
	wrapped := errors.WrapTransient(cause, "Evaluator", "onCompletion", "evaluation future timeout")
	return newOpError(requestID, StatusServerErrorTimeout, true, joinCause(ErrEvaluationTimeout, wrapped))
}

func streamingTimeoutErr(requestID, detail string) *OpError {
	cause := errors.WrapTransient(fmt.Errorf("%s", detail), "Streamer", "run", "serializedResponseTimeout exceeded")
	return newOpError(requestID, StatusServerErrorTimeout, true, joinCause(ErrStreamingTimeout, cause))
}

func serializationErr(requestID string, cause error) *OpError {
	wrapped := errors.WrapFatal(cause, "FrameBuilder", "makeFrame", "serialization")
	return newOpError(requestID, StatusSerialization, true, joinCause(ErrSerialization, wrapped))
}

func interruptedErr(requestID string) *OpError {
	cause := errors.WrapTransient(ErrInterrupted, "Streamer", "run", "cooperative cancellation")
	return newOpError(requestID, StatusServerError, true, joinCause(ErrInterrupted, cause))
}

func unexpectedErr(requestID string, cause error) *OpError {
	wrapped := errors.Wrap(cause, "Evaluator", "onSuccess", "streaming")
	return newOpError(requestID, StatusServerError, true, joinCause(ErrUnexpected, wrapped))
}

// joinCause keeps the sentinel matchable via errors.Is while preserving the
// classified, component-scoped message produced by the errors package.
func joinCause(sentinel, classified error) error {
	return stderrors.Join(sentinel, classified)
}
