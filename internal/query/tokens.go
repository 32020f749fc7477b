// Package query implements the script-evaluation operation processor: the
// dispatcher, evaluator, result streamer, frame builder, and transaction
// coordinator that sit between a decoded client request and a framed
// response stream.
package query

// Op identifies the operation requested by a client message.
type Op string

// Recognized op codes. Unrecognized codes are handled by a registered
// handler if one was added via Dispatcher.RegisterHandler or
// Dispatcher.SetOtherSelector; otherwise they fail
// with ErrMalformedRequest.
const (
	OpEval    Op = "eval"
	OpInvalid Op = "invalid"
)

// Argument keys recognized in a RequestMessage's Args map.
const (
	ArgGremlin    = "gremlin"
	ArgLanguage   = "language"
	ArgBindings   = "bindings"
	ArgBatchSize  = "batchSize"
	ArgAliases    = "aliases"
	ArgRebindings = "rebindings"
)

// reservedBindingKeys mirrors the static-import surface a script engine
// exposes by default (T.id, T.key, T.label, T.value in Gremlin terms).
// Both the lower-case accessor and its upper-cased form are reserved,
// because some script engines silently import static upper-case fields.
var reservedBindingKeys = map[string]bool{
	"id":    true,
	"key":   true,
	"label": true,
	"value": true,
	"ID":    true,
	"KEY":   true,
	"LABEL": true,
	"VALUE": true,
}

func isReservedBindingKey(k string) bool {
	return reservedBindingKeys[k]
}
