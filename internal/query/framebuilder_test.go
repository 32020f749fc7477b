package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBuilder_MakeFrame_Success(t *testing.T) {
	fb := NewFrameBuilder(&fakeSerializer{}, nil)
	ch := newFakeChannel()
	msg := RequestMessage{RequestID: "r1"}

	frame, err := fb.MakeFrame(ch, msg, []any{1, 2}, StatusPartialContent)

	require.Nil(t, err)
	assert.Equal(t, "r1", frame.RequestID)
	assert.Equal(t, StatusPartialContent, frame.Code)
	assert.Equal(t, []byte("2-items"), frame.Data)
	assert.Empty(t, ch.allResponses())
}

func TestFrameBuilder_MakeFrame_SerializationFailure_WritesErrorResponse(t *testing.T) {
	fb := NewFrameBuilder(&fakeSerializer{failOn: func([]any) bool { return true }}, nil)
	ch := newFakeChannel()
	msg := RequestMessage{RequestID: "r1"}

	frame, err := fb.MakeFrame(ch, msg, []any{1}, StatusSuccess)

	require.NotNil(t, err)
	assert.Equal(t, StatusSerialization, err.Code)
	assert.Equal(t, Frame{}, frame)

	responses := ch.allResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, StatusSerialization, responses[0].Code)
	assert.Equal(t, "r1", responses[0].RequestID)
}

func TestFrameBuilder_UsesBinaryWhenChannelRequests(t *testing.T) {
	calledBinary := false
	serializer := &recordingSerializer{onBinary: func() { calledBinary = true }}
	fb := NewFrameBuilder(serializer, nil)
	ch := newFakeChannel()
	ch.binary = true

	_, err := fb.MakeFrame(ch, RequestMessage{RequestID: "r1"}, []any{1}, StatusSuccess)

	require.Nil(t, err)
	assert.True(t, calledBinary)
}

type recordingSerializer struct {
	onBinary func()
}

func (s *recordingSerializer) SerializeBinary(ResponseMessage) ([]byte, error) {
	s.onBinary()
	return []byte("bin"), nil
}

func (s *recordingSerializer) SerializeText(ResponseMessage) ([]byte, error) {
	return []byte("text"), nil
}
