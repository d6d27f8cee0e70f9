package notifier

import (
	"context"

	"github.com/convention-registry/member-api/internal/domain"
)

// AccountMessage tells a member about their (new) access key after an email change.
type AccountMessage struct {
	Email    string
	Key      string
	MemberID domain.PersonID
	Name     string
}

type Notifier interface {
	SendAccountMessage(ctx context.Context, msg AccountMessage) error
}
