package people

import (
	"encoding/json"
	"time"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

// NewPerson is the caller-supplied content of a person to create.
type NewPerson struct {
	Membership      domain.Membership `json:"membership" validate:"required,membership"`
	MemberNumber    *int64            `json:"member_number" validate:"omitempty,gt=0"`
	LegalName       string            `json:"legal_name" validate:"required,max=256"`
	PublicFirstName *string           `json:"public_first_name" validate:"omitempty,max=128"`
	PublicLastName  *string           `json:"public_last_name" validate:"omitempty,max=128"`
	Email           string            `json:"email" validate:"omitempty,email"`
	City            *string           `json:"city"`
	State           *string           `json:"state"`
	Country         *string           `json:"country"`
	BadgeName       *string           `json:"badge_name" validate:"omitempty,max=64"`
	BadgeSubtitle   *string           `json:"badge_subtitle" validate:"omitempty,max=64"`
	PaperPubs       json.RawMessage   `json:"paper_pubs"`
	HugoNominator   bool              `json:"hugo_nominator"`
	HugoVoter       bool              `json:"hugo_voter"`
}

type CreateMemberInput struct {
	Person NewPerson
	// DayPassDays lists the requested day identifiers; empty means a standard membership.
	DayPassDays []string
	Actor       memberrepo.Actor
}

type CreateMemberResult struct {
	ID           domain.PersonID
	MemberNumber *int64
}

type UpdateMemberInput struct {
	ID    domain.PersonID
	Patch domain.PersonPatch
	// Admin selects the full administrative field set; otherwise the self-service subset
	// applies and paper_pubs consent gating may restrict the update.
	Admin bool
	Actor memberrepo.Actor
}

type UpdateMemberResult struct {
	Updated []string
	KeySent bool
}

// PrevName is a legal name the person used before their current one.
type PrevName struct {
	Name string
	From time.Time
	To   time.Time
}
