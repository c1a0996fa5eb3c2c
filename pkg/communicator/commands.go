package communicator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cbodonnell/tickrelay/pkg/messages"
)

// Handler executes one command kind against the communicator. env is the
// envelope the command arrived in, or nil for a command queued during a tick.
// Handlers run on the tick goroutine, so they may mutate state owned by the
// tick without locking. They must not block.
type Handler[S any] func(c *Communicator[S], env *messages.Envelope, cmd *messages.Command) error

// ErrUnknownCommand is returned when no handler is registered for a kind.
type ErrUnknownCommand struct {
	Kind messages.CommandKind
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("no handler registered for command %q", e.Kind)
}

// CommandTable maps command kinds to handlers.
type CommandTable[S any] struct {
	lock     sync.RWMutex
	handlers map[messages.CommandKind]Handler[S]
}

func NewCommandTable[S any]() *CommandTable[S] {
	return &CommandTable[S]{
		handlers: make(map[messages.CommandKind]Handler[S]),
	}
}

// Register sets the handler for kind, replacing any previous one.
func (t *CommandTable[S]) Register(kind messages.CommandKind, h Handler[S]) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handlers[kind] = h
}

// Kinds returns the registered kinds in lexical order.
func (t *CommandTable[S]) Kinds() []messages.CommandKind {
	t.lock.RLock()
	defer t.lock.RUnlock()
	kinds := make([]messages.CommandKind, 0, len(t.handlers))
	for k := range t.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute dispatches cmd to its handler.
func (t *CommandTable[S]) Execute(c *Communicator[S], env *messages.Envelope, cmd *messages.Command) error {
	t.lock.RLock()
	h, ok := t.handlers[cmd.Kind]
	t.lock.RUnlock()
	if !ok {
		return &ErrUnknownCommand{Kind: cmd.Kind}
	}
	return h(c, env, cmd)
}
