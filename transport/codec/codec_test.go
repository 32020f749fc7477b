package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/traversalproc/internal/query"
)

func TestDecodeRequestMessage_ParsesEnvelope(t *testing.T) {
	data := []byte(`{"requestId":"r1","op":"eval","args":{"gremlin":"g.V()"}}`)

	msg, err := DecodeRequestMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, query.OpEval, msg.Op)
	assert.Equal(t, "g.V()", msg.Args["gremlin"])
}

func TestDecodeRequestMessage_MissingOpDefaultsToInvalid(t *testing.T) {
	data := []byte(`{"requestId":"r2","args":{}}`)

	msg, err := DecodeRequestMessage(data)
	require.NoError(t, err)
	assert.Equal(t, query.OpInvalid, msg.Op)
}

func TestDecodeRequestMessage_MalformedJSON(t *testing.T) {
	_, err := DecodeRequestMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSerializer_TextAndBinaryEncodingsDiffer(t *testing.T) {
	s := NewSerializer()
	msg := query.BuildResponse("r1").
		WithCode(query.StatusSuccess).
		WithResult([]any{"a", "b"})

	text, err := s.SerializeText(msg)
	require.NoError(t, err)
	assert.Contains(t, string(text), `"requestId":"r1"`)

	binary, err := s.SerializeBinary(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, binary)
	assert.NotEqual(t, text, binary)
}
