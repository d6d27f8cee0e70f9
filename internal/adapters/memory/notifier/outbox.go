package notifier

import (
	"context"
	"sync"

	"github.com/convention-registry/member-api/internal/ports/out/notifier"
)

// Outbox records account messages instead of delivering them. Err, when set, is
// returned from every send.
type Outbox struct {
	mu   sync.Mutex
	sent []notifier.AccountMessage
	Err  error
}

func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) SendAccountMessage(ctx context.Context, msg notifier.AccountMessage) error {
	_ = ctx
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.sent = append(o.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []notifier.AccountMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notifier.AccountMessage(nil), o.sent...)
}
