package query

import "context"

// TransactionCoordinator issues commit/rollback against a GraphManager,
// scoped either to all graphs or to the aliased subset named by the
// request (spec §4.4). Callers (the Evaluator and the Streamer) are
// responsible for calling at most one of Commit/Rollback per request.
type TransactionCoordinator struct {
	graphs GraphManager
	strict bool
}

// NewTransactionCoordinator builds a coordinator bound to a graph manager
// and transaction-management mode.
func NewTransactionCoordinator(graphs GraphManager, strict bool) *TransactionCoordinator {
	return &TransactionCoordinator{graphs: graphs, strict: strict}
}

// AttemptCommit commits at a successful terminal boundary. In strict mode
// it extracts the alias mapping from args[aliases] (preferred) or
// args[rebindings] and commits only the graphs named as mapping values;
// in non-strict mode it commits every graph the manager owns.
func (tc *TransactionCoordinator) AttemptCommit(ctx context.Context, msg RequestMessage) error {
	if tc.graphs == nil {
		return nil
	}
	if !tc.strict {
		return tc.graphs.CommitAll(ctx)
	}
	names := aliasedGraphNames(msg)
	return tc.graphs.Commit(ctx, names)
}

// AttemptRollback rolls back from any error path within evaluation or
// streaming. Same scoping rules as AttemptCommit.
func (tc *TransactionCoordinator) AttemptRollback(ctx context.Context, msg RequestMessage) error {
	if tc.graphs == nil {
		return nil
	}
	if !tc.strict {
		return tc.graphs.RollbackAll(ctx)
	}
	names := aliasedGraphNames(msg)
	return tc.graphs.Rollback(ctx, names)
}

func aliasedGraphNames(msg RequestMessage) []string {
	mapping, ok := msg.aliasMapping()
	if !ok {
		return nil
	}
	names := make([]string, 0, len(mapping))
	seen := make(map[string]bool, len(mapping))
	for _, graphName := range mapping {
		if !seen[graphName] {
			seen[graphName] = true
			names = append(names, graphName)
		}
	}
	return names
}
