package messages

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movePayload struct {
	Direction int `json:"direction"`
}

func TestCommand_Decode(t *testing.T) {
	cmd, err := NewCommand("move", movePayload{Direction: 2})
	require.NoError(t, err)

	var got movePayload
	require.NoError(t, cmd.Decode(&got))
	assert.Equal(t, 2, got.Direction)

	empty, err := NewCommand("fire", nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Payload)
	assert.Error(t, empty.Decode(&got))
}

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{
			name:    "empty",
			env:     NewEnvelope(nil, nil),
			wantErr: true,
		},
		{
			name:    "null state",
			env:     NewEnvelope([]byte("null"), nil),
			wantErr: true,
		},
		{
			name: "state only",
			env:  NewEnvelope([]byte(`{"tick":1}`), nil),
		},
		{
			name: "command only",
			env:  NewEnvelope(nil, &Command{Kind: "fire"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyEnvelope)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvelope_Ping(t *testing.T) {
	sent := time.UnixMilli(1_000_000)

	env := NewEnvelope(nil, &Command{Kind: "fire"})
	assert.Equal(t, Unstamped, env.Ping())

	env.StampOutgoing(7, sent)
	env.StampIncoming(9, sent.Add(35*time.Millisecond))
	assert.Equal(t, int64(7), env.SenderID)
	assert.Equal(t, int64(9), env.ReceiverID)
	assert.Equal(t, int64(35), env.Ping())

	unsent := NewEnvelope(nil, &Command{Kind: "fire"})
	unsent.StampIncoming(9, sent)
	assert.Equal(t, Unstamped, unsent.Ping())
}

func TestEnvelope_Clone(t *testing.T) {
	env := NewEnvelope(nil, &Command{Kind: "fire"})
	clone := env.Clone()
	clone.StampOutgoing(1, time.Now())
	assert.Equal(t, Unstamped, env.SenderSendTimeMs)
	assert.Equal(t, int64(0), env.SenderID)
	assert.Same(t, env.Command, clone.Command)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	cmd := MustCommand("move", movePayload{Direction: 3})
	env, err := NewStateEnvelope(map[string]int{"tick": 42}, cmd)
	require.NoError(t, err)
	sent := time.UnixMilli(5_000)
	env.StampOutgoing(11, sent)

	b, err := codec.SerializeEnvelope(env)
	require.NoError(t, err)

	got, err := codec.DeserializeEnvelope(b)
	require.NoError(t, err)
	got.StampIncoming(12, sent.Add(10*time.Millisecond))

	assert.JSONEq(t, `{"tick":42}`, string(got.State))
	require.NotNil(t, got.Command)
	assert.Equal(t, CommandKind("move"), got.Command.Kind)
	assert.JSONEq(t, `{"direction":3}`, string(got.Command.Payload))
	assert.Equal(t, int64(11), got.SenderID)
	assert.Equal(t, int64(12), got.ReceiverID)
	assert.Equal(t, int64(10), got.Ping())
}

func TestCodec_Errors(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.SerializeEnvelope(NewEnvelope(nil, nil))
	assert.ErrorIs(t, err, ErrEmptyEnvelope)

	_, err = codec.DeserializeEnvelope([]byte("not zstd"))
	assert.Error(t, err)

	// valid zstd around a buffer that is not a flatbuffer
	_, err = codec.DeserializeEnvelope(codec.encoder.EncodeAll([]byte{1, 2}, nil))
	assert.Error(t, err)

	// a well formed flatbuffer with neither state nor command
	_, err = codec.DeserializeEnvelope(codec.encoder.EncodeAll(SerializeEnvelopeFlatbuffer(NewEnvelope(nil, nil)), nil))
	assert.ErrorIs(t, err, ErrEmptyEnvelope)
}

func TestEnvelopeFlatbuffer(t *testing.T) {
	tests := []struct {
		name string
		env  *Envelope
	}{
		{
			name: "state only",
			env:  NewEnvelope([]byte(`{"tick":1}`), nil),
		},
		{
			name: "command without payload",
			env:  NewEnvelope(nil, &Command{Kind: "fire"}),
		},
		{
			name: "state and command",
			env:  NewEnvelope([]byte(`[1,2]`), MustCommand("move", movePayload{Direction: 1})),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.env.StampOutgoing(3, time.UnixMilli(9_000))

			got, err := DeserializeEnvelopeFlatbuffer(SerializeEnvelopeFlatbuffer(tt.env))
			require.NoError(t, err)

			assert.Equal(t, tt.env.HasState(), got.HasState())
			assert.Equal(t, string(tt.env.State), string(got.State))
			assert.Equal(t, int64(3), got.SenderID)
			assert.Equal(t, int64(9_000), got.SenderSendTimeMs)
			assert.Equal(t, Unstamped, got.ReceiverRecvTimeMs)
			assert.Equal(t, Unstamped, got.Ping())
			if tt.env.Command == nil {
				assert.Nil(t, got.Command)
				return
			}
			require.NotNil(t, got.Command)
			assert.Equal(t, tt.env.Command.Kind, got.Command.Kind)
			assert.Equal(t, string(tt.env.Command.Payload), string(got.Command.Payload))
		})
	}
}

func TestDeserializeEnvelopeFlatbuffer_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "empty",
			data: nil,
		},
		{
			name: "short",
			data: []byte{1, 2, 3},
		},
		{
			name: "root offset out of range",
			data: []byte{0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeserializeEnvelopeFlatbuffer(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("one")))
	require.NoError(t, WriteFrame(&buf, []byte{}))
	require.NoError(t, WriteFrame(&buf, []byte("three")))

	for _, want := range []string{"one", "", "three"} {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := ReadFrame(&buf)
	assert.True(t, IsConnectionClosed(err))
}

func TestReadFrame_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		wantClosed bool
		wantLarge  bool
	}{
		{
			name:       "truncated header",
			input:      []byte{0, 0},
			wantClosed: true,
		},
		{
			name:       "truncated payload",
			input:      []byte{0, 0, 0, 5, 'a', 'b'},
			wantClosed: true,
		},
		{
			name:      "oversized",
			input:     binary.BigEndian.AppendUint32(nil, MaxFrameSize+1),
			wantLarge: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.wantClosed, IsConnectionClosed(err))
			var large *ErrFrameTooLarge
			assert.Equal(t, tt.wantLarge, errors.As(err, &large))
		})
	}

	err := WriteFrame(&bytes.Buffer{}, make([]byte, MaxFrameSize+1))
	var large *ErrFrameTooLarge
	assert.ErrorAs(t, err, &large)
}
