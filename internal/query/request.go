package query

import (
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

// RequestMessage is a decoded client request, already parsed and checked
// for minimal structural validity by the (out-of-scope) decoder.
type RequestMessage struct {
	RequestID string
	Op        Op
	Args      map[string]any
}

var validBindingName = regexp.MustCompile(`^[A-Za-z$_][A-Za-z0-9$_]*$`)

// Gremlin returns the gremlin script argument and whether it was present.
func (m RequestMessage) Gremlin() (string, bool) {
	v, ok := m.Args[ArgGremlin]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Language returns the language argument, or "" if unset.
func (m RequestMessage) Language() string {
	if v, ok := m.Args[ArgLanguage]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Bindings returns the bindings map argument, or nil if unset.
func (m RequestMessage) Bindings() map[string]any {
	v, ok := m.Args[ArgBindings]
	if !ok {
		return nil
	}
	b, _ := v.(map[string]any)
	return b
}

// BatchSize returns the request-supplied batch size override, or 0 if unset.
func (m RequestMessage) BatchSize() int {
	v, ok := m.Args[ArgBatchSize]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// aliasMapping returns the alias/rebindings name→graph mapping, preferring
// aliases when both are present (spec §9: "prefer aliases when present").
func (m RequestMessage) aliasMapping() (map[string]string, bool) {
	if raw, ok := m.Args[ArgAliases]; ok {
		if mapped, ok := toStringMap(raw); ok {
			return mapped, true
		}
	}
	if raw, ok := m.Args[ArgRebindings]; ok {
		if mapped, ok := toStringMap(raw); ok {
			return mapped, true
		}
	}
	return nil, false
}

func toStringMap(raw any) (map[string]string, bool) {
	switch v := raw.(type) {
	case map[string]string:
		return v, true
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// validateEvalMessage implements spec §4.1's validateEvalMessage: it
// returns a non-nil *OpError built with InvalidArguments classification on
// the first violation found, or nil when the message is fit to evaluate.
func validateEvalMessage(m RequestMessage) *OpError {
	if _, ok := m.Gremlin(); !ok {
		return invalidArgumentsf(m.RequestID,
			"A message with an [%s] op code requires a [%s] argument.", OpEval, ArgGremlin)
	}

	if raw, present := m.Args[ArgBindings]; present {
		bindings, ok := raw.(map[string]any)
		if !ok {
			return invalidArgumentsf(m.RequestID,
				"The [%s] message is using a [%s] argument that is not a mapping.", OpEval, ArgBindings)
		}
		for k := range bindings {
			if k == "" || !validBindingName.MatchString(k) {
				return invalidArgumentsf(m.RequestID,
					"The [%s] message is using one or more invalid binding keys - they must be of type String and cannot be null", OpEval)
			}
			if isReservedBindingKey(k) {
				return invalidArgumentsf(m.RequestID,
					"The [%s] message is using at least one of the invalid binding keys [id,key,label,value]. It conflicts with standard static imports.", OpEval)
			}
		}
	}

	return nil
}

// argsSchema is the JSON-schema shape a decoded args map must satisfy
// before Dispatcher-level semantic validation runs (spec is silent on shape
// validation; this is the ambient "reject garbage early" layer adapted from
// cmd/schema-exporter/validate.go's use of gojsonschema).
var argsSchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "properties": {
    "gremlin": {"type": "string"},
    "language": {"type": "string"},
    "bindings": {"type": "object"},
    "batchSize": {"type": "number"},
    "aliases": {"type": "object"},
    "rebindings": {"type": "object"}
  },
  "additionalProperties": true
}`)

// validateArgsShape rejects an args map that doesn't even match the
// recognized token shapes (e.g. gremlin supplied as a number) before the
// Dispatcher attempts semantic validation on it.
func validateArgsShape(m RequestMessage) *OpError {
	if m.Args == nil {
		return nil
	}
	result, err := gojsonschema.Validate(argsSchema, gojsonschema.NewGoLoader(m.Args))
	if err != nil {
		return invalidArgumentsf(m.RequestID, "args could not be validated: %s", err)
	}
	if !result.Valid() {
		return invalidArgumentsf(m.RequestID, "args failed schema validation: %s", result.Errors()[0])
	}
	return nil
}
