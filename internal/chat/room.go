package chat

import (
	"context"
	"strings"
	"sync"

	"lmsportal/internal/auth"
	"lmsportal/internal/model"
)

// Room is one mounted chat view. Messages accumulate in arrival order for the
// lifetime of the room; there is no history or backfill.
type Room struct {
	t         Transport
	name      string
	onMessage func(model.ChatMessage)

	mu       sync.Mutex
	messages []model.ChatMessage
	done     chan struct{}
}

// NewRoom subscribes to t. The display name is taken from token once, here,
// and falls back to Guest. onMessage, when set, sees each message after it
// was appended.
func NewRoom(t Transport, token string, onMessage func(model.ChatMessage)) *Room {
	r := &Room{
		t:         t,
		name:      auth.DisplayName(token),
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
	go r.listen()
	return r
}

func (r *Room) listen() {
	defer close(r.done)
	for msg := range r.t.Subscribe() {
		r.mu.Lock()
		r.messages = append(r.messages, msg)
		r.mu.Unlock()
		if r.onMessage != nil {
			r.onMessage(msg)
		}
	}
}

// Name is the display name attached to outgoing messages.
func (r *Room) Name() string { return r.name }

// Messages returns a copy of everything received so far.
func (r *Room) Messages() []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChatMessage{}, r.messages...)
}

// Send publishes text under the room's display name. Blank text is ignored.
// The message shows up in Messages only when the channel echoes it back.
func (r *Room) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return r.t.Send(ctx, model.ChatMessage{User: r.name, Message: text})
}

// Done is closed once the channel stops delivering.
func (r *Room) Done() <-chan struct{} { return r.done }

// Close unsubscribes and waits for the listener to stop.
func (r *Room) Close() error {
	err := r.t.Close()
	<-r.done
	return err
}
