package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Streamer is the Result Streamer (§4.3): it consumes an Iterator for a
// single request and writes a sequence of Frames to a Channel, honoring
// batch-size limits, channel backpressure, and a serialization-time
// budget, and invoking the Transaction Coordinator at the correct
// boundaries.
type Streamer struct {
	tx      *TransactionCoordinator
	managed bool
	frames  *FrameBuilder
	logger  *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewStreamer builds a Streamer. tx may be nil when managed is false.
func NewStreamer(tx *TransactionCoordinator, managed bool, frames *FrameBuilder, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		tx:      tx,
		managed: managed,
		frames:  frames,
		logger:  logger,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// backpressureSleep is the fixed wake interval from spec §4.3 step 4.
const backpressureSleep = 10 * time.Millisecond

// Run executes the main loop described in spec §4.3 over it, writing
// frames to ctxReq.Channel. It returns nil on success (a terminal
// NO_CONTENT or SUCCESS frame was written) or a non-nil *OpError the
// caller (the Evaluator) must translate into a rollback plus, if not
// already written, a terminal error response.
func (s *Streamer) Run(ctx context.Context, reqCtx *Context, it Iterator) *OpError {
	msg := reqCtx.Message
	ch := reqCtx.Channel

	batchSize := msg.BatchSize()
	if batchSize <= 0 {
		batchSize = reqCtx.Settings.ResultIterationBatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	if !it.HasNext() {
		if s.managed {
			if err := s.tx.AttemptCommit(ctx, msg); err != nil {
				return unexpectedErr(msg.RequestID, err)
			}
		}
		if reqCtx.markTerminal() {
			_ = ch.WriteResponse(BuildResponse(msg.RequestID).WithCode(StatusNoContent))
		}
		return nil
	}

	aggregate := make([]any, 0, batchSize)
	hasMore := true
	warnedBackpressure := false
	startTime := s.now()

	for hasMore {
		if err := ctx.Err(); err != nil {
			return interruptedErr(msg.RequestID)
		}

		if len(aggregate) < batchSize {
			v, err := it.Next()
			if err != nil {
				return unexpectedErr(msg.RequestID, err)
			}
			aggregate = append(aggregate, v)
		}

		if ch.IsWritable() {
			shouldEmit := len(aggregate) == batchSize || !it.HasNext()
			if shouldEmit {
				code := StatusPartialContent
				if !it.HasNext() {
					code = StatusSuccess
				}

				frame, buildErr := s.frames.MakeFrame(ch, msg, aggregate, code)
				if buildErr != nil {
					// Rollback is the Evaluator's responsibility (it inspects
					// ManagedRollback on the returned *OpError), matching every
					// other failure path in this loop.
					return buildErr
				}

				if code.IsTerminal() {
					if s.managed {
						if err := s.tx.AttemptCommit(ctx, msg); err != nil {
							return unexpectedErr(msg.RequestID, err)
						}
					}
					hasMore = false
					reqCtx.markTerminal()
				}

				if err := ch.WriteFrame(frame); err != nil {
					return unexpectedErr(msg.RequestID, err)
				}

				if hasMore {
					aggregate = make([]any, 0, batchSize)
				}
			}
		} else {
			if !warnedBackpressure {
				s.logger.Warn("pausing response writing, channel is not writable",
					"requestId", msg.RequestID)
				warnedBackpressure = true
			}
			s.sleep(backpressureSleep)
		}

		if elapsed := s.now().Sub(startTime); elapsed > reqCtx.Settings.SerializedResponseTimeout {
			detail := fmt.Sprintf("Serialization of the entire response exceeded the serializedResponseTimeout setting%s",
				backpressureSuffix(warnedBackpressure))
			return streamingTimeoutErr(msg.RequestID, detail)
		}
	}

	return nil
}

func backpressureSuffix(warned bool) string {
	if warned {
		return " (server paused writes to a slow-reading client)"
	}
	return ""
}
