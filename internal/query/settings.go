package query

import "time"

// Settings are the read-only, server-wide defaults consulted by the
// Evaluator and Result Streamer. A real deployment loads these from
// config.Config (see config/); tests construct them directly.
type Settings struct {
	// ResultIterationBatchSize is the default number of result objects per
	// outbound frame, used unless the request supplies its own batchSize.
	ResultIterationBatchSize int

	// SerializedResponseTimeout bounds the total wall-clock time the Result
	// Streamer may spend producing and writing frames for one response.
	SerializedResponseTimeout time.Duration

	// EvaluationTimeout bounds how long the Evaluator waits on the Engine's
	// future before treating the request as timed out (spec §4.2).
	EvaluationTimeout time.Duration

	// StrictTransactionManagement selects scoped (alias-based) vs. global
	// commit/rollback in the Transaction Coordinator.
	StrictTransactionManagement bool
}

// DefaultSettings returns the values the teacher's Settings analogue ships
// with: a modest batch size and a generous but bounded streaming budget.
func DefaultSettings() Settings {
	return Settings{
		ResultIterationBatchSize:    64,
		SerializedResponseTimeout:   30 * time.Second,
		EvaluationTimeout:           30 * time.Second,
		StrictTransactionManagement: false,
	}
}
