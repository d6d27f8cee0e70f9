package maillist

import (
	"context"
	"sort"
	"sync"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/mailsync"
)

// List is an in-memory recipient list implementing mailsync.Provider.
type List struct {
	mu         sync.Mutex
	recipients map[string]mailsync.Recipient
}

func NewList() *List {
	return &List{recipients: make(map[string]mailsync.Recipient)}
}

func (l *List) Put(ctx context.Context, r mailsync.Recipient) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recipients[domain.NormalizeEmail(r.Email)] = r
	return nil
}

func (l *List) Delete(ctx context.Context, email string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.recipients, domain.NormalizeEmail(email))
	return nil
}

// Get returns the recipient stored for email.
func (l *List) Get(email string) (mailsync.Recipient, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.recipients[domain.NormalizeEmail(email)]
	return r, ok
}

// Emails returns the listed addresses in sorted order.
func (l *List) Emails() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.recipients))
	for e := range l.recipients {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
