package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Unstamped marks a timestamp or latency that has not been set yet.
const Unstamped int64 = math.MinInt64

// ErrEmptyEnvelope is returned when an envelope carries neither a state nor a command.
var ErrEmptyEnvelope = errors.New("envelope carries neither state nor command")

// CommandKind names a command variant. Each kind has one registered handler.
type CommandKind string

// Command is a serializable unit of remote-triggered mutation: a kind tag plus
// a small immutable payload decoded by the handler for that kind.
type Command struct {
	Kind    CommandKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewCommand builds a Command, encoding payload as JSON when it is not nil.
func NewCommand(kind CommandKind, payload interface{}) (*Command, error) {
	cmd := &Command{Kind: kind}
	if payload == nil {
		return cmd, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", kind, err)
	}
	cmd.Payload = b
	return cmd, nil
}

// MustCommand is like NewCommand but panics if the payload cannot be encoded.
// Intended for payloads built from plain structs.
func MustCommand(kind CommandKind, payload interface{}) *Command {
	cmd, err := NewCommand(kind, payload)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Decode unmarshals the command payload into v.
func (c *Command) Decode(v interface{}) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("command %s has no payload", c.Kind)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v", c.Kind, err)
	}
	return nil
}

// Envelope is the unit exchanged between peers. It carries an optional state
// snapshot and/or an optional command, plus the identity of the connections
// that sent and received it and the times at which that happened.
type Envelope struct {
	State   json.RawMessage `json:"state,omitempty"`
	Command *Command        `json:"command,omitempty"`

	SenderID           int64 `json:"senderId"`
	SenderSendTimeMs   int64 `json:"senderSendTimeMs"`
	ReceiverID         int64 `json:"receiverId"`
	ReceiverRecvTimeMs int64 `json:"receiverRecvTimeMs"`

	// latency is computed once when the envelope is stamped on receipt.
	latency int64
}

// NewEnvelope creates an unstamped envelope.
func NewEnvelope(state json.RawMessage, command *Command) *Envelope {
	return &Envelope{
		State:              state,
		Command:            command,
		SenderSendTimeMs:   Unstamped,
		ReceiverRecvTimeMs: Unstamped,
		latency:            Unstamped,
	}
}

// NewStateEnvelope encodes state as JSON and wraps it in an envelope.
func NewStateEnvelope(state interface{}, command *Command) (*Envelope, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %v", err)
	}
	return NewEnvelope(b, command), nil
}

// HasState reports whether the envelope carries a state snapshot.
func (e *Envelope) HasState() bool {
	return len(e.State) > 0 && string(e.State) != "null"
}

// Validate checks that at least one of state or command is present.
func (e *Envelope) Validate() error {
	if !e.HasState() && e.Command == nil {
		return ErrEmptyEnvelope
	}
	return nil
}

// StampOutgoing records the sending connection and the send time.
func (e *Envelope) StampOutgoing(senderID int64, now time.Time) {
	e.SenderID = senderID
	e.SenderSendTimeMs = now.UnixMilli()
}

// StampIncoming records the receiving connection and the receive time, and
// computes the latency if the sender stamped the envelope.
func (e *Envelope) StampIncoming(receiverID int64, now time.Time) {
	e.ReceiverID = receiverID
	e.ReceiverRecvTimeMs = now.UnixMilli()
	if e.SenderSendTimeMs == Unstamped {
		e.latency = Unstamped
		return
	}
	e.latency = e.ReceiverRecvTimeMs - e.SenderSendTimeMs
}

// Ping returns the one-way latency in milliseconds, or Unstamped if the
// envelope has not been received yet.
func (e *Envelope) Ping() int64 {
	return e.latency
}

// Clone returns a shallow copy. The state bytes and command are shared and
// must not be mutated.
func (e *Envelope) Clone() *Envelope {
	c := *e
	return &c
}
