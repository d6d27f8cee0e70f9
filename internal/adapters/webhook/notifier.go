package webhook

import (
	"context"

	"github.com/convention-registry/member-api/internal/ports/out/notifier"
)

// Notifier delivers account messages to the mail service webhook.
type Notifier struct {
	c *Client
}

func NewNotifier(c *Client) *Notifier { return &Notifier{c: c} }

type accountMessage struct {
	Email    string `json:"email"`
	Key      string `json:"key"`
	MemberID int64  `json:"memberId"`
	Name     string `json:"name"`
}

func (n *Notifier) SendAccountMessage(ctx context.Context, msg notifier.AccountMessage) error {
	return n.c.post(ctx, "account.key", accountMessage{
		Email:    msg.Email,
		Key:      msg.Key,
		MemberID: int64(msg.MemberID),
		Name:     msg.Name,
	})
}
