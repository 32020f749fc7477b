// Package traversalproc implements a script-evaluation operation
// processor for a remote graph-database query server: a per-channel
// pipeline that takes a decoded "eval" request, runs the script through
// a pluggable Engine, streams the results back as batched frames under a
// backpressure and time-budget gate, and commits or rolls back the named
// graphs it touched.
//
// # Architecture
//
// Requests arrive over one of two transports (internal/query.Channel
// implementations):
//
//	transport/wschannel   a per-connection WebSocket channel
//	transport/natschannel a per-request NATS reply-subject channel
//
// Both decode into internal/query.RequestMessage and are handed to a
// service.Server's worker pool, which runs the pipeline:
//
//	Dispatcher   (C5) rate limiting, args-shape validation, op dispatch
//	Evaluator    (C4) submits to the scripting Engine, awaits its future
//	Streamer     (C3) batches results into frames under backpressure
//	TxCoordinator(C2) commits or rolls back the graphs named in aliases
//	FrameBuilder (C1) serializes one batch into a wire Frame
//	MetricsHook  (C6) eval-duration histogram and outcome counters
//
// The scripting Engine itself is pluggable (scripting/yaegi runs a
// sandboxed in-process interpreter; scripting/remote delegates to an
// out-of-process evaluator over NATS request/reply), and named graphs
// are held by graphmgr.Manager, a staged-mutation registry committed or
// rolled back by the TransactionCoordinator.
//
// # Composition root
//
// cmd/queryserver loads configuration (config.Loader), builds a
// service.Server, and runs it until a shutdown signal arrives.
// service.Server wires every collaborator above plus the ambient
// surfaces: NATS connectivity (natsclient), Prometheus metrics
// (metric.MetricsRegistry/Server), and component health (health.Monitor).
package traversalproc
