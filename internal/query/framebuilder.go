package query

import "log/slog"

// FrameBuilder serializes an aggregate batch into a Frame, choosing the
// binary or text serializer based on the channel's UseBinary attribute
// (spec §4.5). On serialization failure it logs a warning, writes a
// SERVER_ERROR_SERIALIZATION response directly to the channel, and
// returns an error the caller (the Result Streamer) must abort the loop
// on.
type FrameBuilder struct {
	serializer Serializer
	logger     *slog.Logger
}

// NewFrameBuilder builds a FrameBuilder over the given serializer.
func NewFrameBuilder(serializer Serializer, logger *slog.Logger) *FrameBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameBuilder{serializer: serializer, logger: logger}
}

// MakeFrame serializes aggregate with the given status code for msg, using
// useBinary to pick the wire format. On failure it writes the error
// response itself and returns a *OpError with Code StatusSerialization.
func (fb *FrameBuilder) MakeFrame(ch Channel, msg RequestMessage, aggregate []any, code ResponseStatusCode) (Frame, *OpError) {
	resp := BuildResponse(msg.RequestID).WithCode(code).WithResult(aggregate)

	var (
		data []byte
		err  error
	)
	if ch.UseBinary() {
		data, err = fb.serializer.SerializeBinary(resp)
	} else {
		data, err = fb.serializer.SerializeText(resp)
	}

	if err != nil {
		fb.logger.Warn("result batch could not be serialized and returned",
			"requestId", msg.RequestID, "batchSize", len(aggregate), "error", err)

		errResp := BuildResponse(msg.RequestID).
			WithCode(StatusSerialization).
			WithStatusMessage("Error during serialization: " + err.Error())
		_ = ch.WriteResponse(errResp)

		return Frame{}, serializationErr(msg.RequestID, err)
	}

	return Frame{RequestID: msg.RequestID, Code: code, Data: data}, nil
}
