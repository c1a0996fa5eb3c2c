package messages

import (
	"fmt"
	"sync"

	envelopefb "github.com/cbodonnell/tickrelay/flatbuffers/envelope"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
)

// root offset plus vtable offset
const minFlatbufferSize = 8

// Codec converts envelopes to and from compressed wire payloads.
// A Codec is safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a Codec using zstd at its fastest level.
func NewCodec() (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameSize*4))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	return &Codec{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

var (
	defaultCodec     *Codec
	defaultCodecErr  error
	defaultCodecOnce sync.Once
)

// DefaultCodec returns a process-wide shared Codec.
func DefaultCodec() (*Codec, error) {
	defaultCodecOnce.Do(func() {
		defaultCodec, defaultCodecErr = NewCodec()
	})
	return defaultCodec, defaultCodecErr
}

// SerializeEnvelope encodes an envelope as a flatbuffer and compresses it.
func (c *Codec) SerializeEnvelope(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	b := SerializeEnvelopeFlatbuffer(e)
	return c.encoder.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
}

// DeserializeEnvelope decompresses and decodes an envelope.
func (c *Codec) DeserializeEnvelope(data []byte) (*Envelope, error) {
	b, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress envelope: %v", err)
	}

	e, err := DeserializeEnvelopeFlatbuffer(b)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize envelope: %v", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// SerializeEnvelopeFlatbuffer builds the uncompressed flatbuffer for e.
// State and command payload travel as opaque byte vectors.
func SerializeEnvelopeFlatbuffer(e *Envelope) []byte {
	builder := flatbuffers.NewBuilder(256)

	var state, kind, payload flatbuffers.UOffsetT
	if len(e.State) > 0 {
		state = builder.CreateByteVector(e.State)
	}
	if e.Command != nil {
		kind = builder.CreateString(string(e.Command.Kind))
		if len(e.Command.Payload) > 0 {
			payload = builder.CreateByteVector(e.Command.Payload)
		}
	}

	envelopefb.EnvelopeStart(builder)
	envelopefb.EnvelopeAddSenderId(builder, e.SenderID)
	envelopefb.EnvelopeAddSenderSendTimeMs(builder, e.SenderSendTimeMs)
	envelopefb.EnvelopeAddReceiverId(builder, e.ReceiverID)
	envelopefb.EnvelopeAddReceiverRecvTimeMs(builder, e.ReceiverRecvTimeMs)
	if state != 0 {
		envelopefb.EnvelopeAddState(builder, state)
	}
	if e.Command != nil {
		envelopefb.EnvelopeAddCommandKind(builder, kind)
		if payload != 0 {
			envelopefb.EnvelopeAddCommandPayload(builder, payload)
		}
		envelopefb.EnvelopeAddHasCommand(builder, true)
	}
	envelopeOffset := envelopefb.EnvelopeEnd(builder)
	builder.Finish(envelopeOffset)

	return builder.FinishedBytes()
}

// DeserializeEnvelopeFlatbuffer reads an envelope from an uncompressed
// flatbuffer. The returned envelope aliases b.
func DeserializeEnvelopeFlatbuffer(b []byte) (e *Envelope, err error) {
	if len(b) < minFlatbufferSize {
		return nil, fmt.Errorf("buffer too short: %d bytes", len(b))
	}
	// the generated accessors index without bounds checks
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("malformed envelope flatbuffer: %v", r)
		}
	}()

	fb := envelopefb.GetRootAsEnvelope(b, 0)
	e = NewEnvelope(nil, nil)
	e.SenderID = fb.SenderId()
	e.SenderSendTimeMs = fb.SenderSendTimeMs()
	e.ReceiverID = fb.ReceiverId()
	e.ReceiverRecvTimeMs = fb.ReceiverRecvTimeMs()
	if state := fb.StateBytes(); len(state) > 0 {
		e.State = state
	}
	if fb.HasCommand() {
		e.Command = &Command{Kind: CommandKind(fb.CommandKind())}
		if payload := fb.CommandPayloadBytes(); len(payload) > 0 {
			e.Command.Payload = payload
		}
	}
	return e, nil
}

// Close releases the encoder and decoder resources.
func (c *Codec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
