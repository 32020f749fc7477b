// Package codec implements the wire-level pieces the processor treats as
// out-of-scope collaborators (spec §1): decoding a RequestMessage off the
// transport and serializing a ResponseMessage onto it. Text responses are
// plain JSON; binary responses use msgpack, mirroring the teacher pack's
// own binary-wire precedent (vmihailenco/msgpack in
// e7canasta-orion-care-sensor's Python worker protocol) rather than
// inventing a bespoke format.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/traversalproc/internal/query"
)

// wireRequest mirrors query.RequestMessage's field names on the wire so
// a RequestMessage round-trips through plain JSON without exposing its
// internal Op string type to callers of encoding/json.
type wireRequest struct {
	RequestID string         `json:"requestId"`
	Op        string         `json:"op"`
	Args      map[string]any `json:"args"`
}

// DecodeRequestMessage parses the JSON envelope a client publishes (over
// NATS or a websocket frame) into a query.RequestMessage. This is the
// decoder's minimal-structural-validity pass the spec's §6 inbound
// contract assumes already happened before Dispatch runs.
func DecodeRequestMessage(data []byte) (query.RequestMessage, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return query.RequestMessage{}, fmt.Errorf("codec: decoding request: %w", err)
	}
	op := query.Op(w.Op)
	if op == "" {
		op = query.OpInvalid
	}
	return query.RequestMessage{RequestID: w.RequestID, Op: op, Args: w.Args}, nil
}

// Serializer implements query.Serializer: SerializeText produces JSON,
// SerializeBinary produces msgpack. Both encode the same ResponseMessage
// shape, so a client can switch formats per connection without the
// processor knowing or caring.
type Serializer struct{}

// NewSerializer builds the JSON/msgpack query.Serializer.
func NewSerializer() Serializer { return Serializer{} }

func (Serializer) SerializeText(msg query.ResponseMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: marshaling JSON response: %w", err)
	}
	return data, nil
}

func (Serializer) SerializeBinary(msg query.ResponseMessage) ([]byte, error) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: marshaling msgpack response: %w", err)
	}
	return data, nil
}
