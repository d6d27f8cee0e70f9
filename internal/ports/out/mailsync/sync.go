package mailsync

import "context"

// Syncer requests reconciliation of the external recipient list for one address.
// Both calls are fire-and-forget: failures are reported out of band.
type Syncer interface {
	Upsert(ctx context.Context, email string)
	Remove(ctx context.Context, email string)
}

// Recipient is the desired list state for one address.
type Recipient struct {
	Email         string
	Name          string
	HugoNominator bool
	HugoVoter     bool
}

// Provider is the external recipient list.
type Provider interface {
	Put(ctx context.Context, r Recipient) error
	Delete(ctx context.Context, email string) error
}
