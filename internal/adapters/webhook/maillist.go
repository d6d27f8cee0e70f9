package webhook

import (
	"context"

	"github.com/convention-registry/member-api/internal/ports/out/mailsync"
)

// MailList pushes recipient list changes to the mail provider webhook.
type MailList struct {
	c *Client
}

func NewMailList(c *Client) *MailList { return &MailList{c: c} }

type recipient struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	HugoNominator bool   `json:"hugo_nominator"`
	HugoVoter     bool   `json:"hugo_voter"`
}

func (l *MailList) Put(ctx context.Context, r mailsync.Recipient) error {
	return l.c.post(ctx, "recipient.put", recipient{
		Email:         r.Email,
		Name:          r.Name,
		HugoNominator: r.HugoNominator,
		HugoVoter:     r.HugoVoter,
	})
}

func (l *MailList) Delete(ctx context.Context, email string) error {
	return l.c.post(ctx, "recipient.delete", map[string]string{"email": email})
}
