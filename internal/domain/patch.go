package domain

import (
	"encoding/json"

	"github.com/oapi-codegen/nullable"
)

// PersonPatch is a partial update of a person record. Each field is tri-state:
// omitted, explicitly null, or set.
type PersonPatch struct {
	Membership      nullable.Nullable[Membership]      `json:"membership"`
	MemberNumber    nullable.Nullable[int64]           `json:"member_number"`
	LegalName       nullable.Nullable[string]          `json:"legal_name"`
	PublicFirstName nullable.Nullable[string]          `json:"public_first_name"`
	PublicLastName  nullable.Nullable[string]          `json:"public_last_name"`
	Email           nullable.Nullable[string]          `json:"email"`
	City            nullable.Nullable[string]          `json:"city"`
	State           nullable.Nullable[string]          `json:"state"`
	Country         nullable.Nullable[string]          `json:"country"`
	BadgeName       nullable.Nullable[string]          `json:"badge_name"`
	BadgeSubtitle   nullable.Nullable[string]          `json:"badge_subtitle"`
	PaperPubs       nullable.Nullable[json.RawMessage] `json:"paper_pubs"`
	HugoNominator   nullable.Nullable[bool]            `json:"hugo_nominator"`
	HugoVoter       nullable.Nullable[bool]            `json:"hugo_voter"`

	// CleanPaperPubs holds the normalized paper_pubs value once validated.
	CleanPaperPubs *PaperPubs `json:"-"`
}

// Specified returns the names of the fields present in the patch, in AdminFields order.
func (p PersonPatch) Specified() []string {
	out := make([]string, 0, len(AdminFields))
	for _, f := range AdminFields {
		if p.IsSpecified(f) {
			out = append(out, f)
		}
	}
	return out
}

func (p PersonPatch) IsSpecified(field string) bool {
	switch field {
	case FieldMembership:
		return p.Membership.IsSpecified()
	case FieldMemberNumber:
		return p.MemberNumber.IsSpecified()
	case FieldLegalName:
		return p.LegalName.IsSpecified()
	case FieldPublicFirstName:
		return p.PublicFirstName.IsSpecified()
	case FieldPublicLastName:
		return p.PublicLastName.IsSpecified()
	case FieldEmail:
		return p.Email.IsSpecified()
	case FieldCity:
		return p.City.IsSpecified()
	case FieldState:
		return p.State.IsSpecified()
	case FieldCountry:
		return p.Country.IsSpecified()
	case FieldBadgeName:
		return p.BadgeName.IsSpecified()
	case FieldBadgeSubtitle:
		return p.BadgeSubtitle.IsSpecified()
	case FieldPaperPubs:
		return p.PaperPubs.IsSpecified()
	case FieldHugoNominator:
		return p.HugoNominator.IsSpecified()
	case FieldHugoVoter:
		return p.HugoVoter.IsSpecified()
	}
	return false
}

// Value returns the storage value of a field: nil for an explicit null, otherwise a
// string, int64, bool, Membership or *PaperPubs. The boolean is false when the field is
// not part of the patch.
func (p PersonPatch) Value(field string) (any, bool) {
	if !p.IsSpecified(field) {
		return nil, false
	}
	switch field {
	case FieldMembership:
		return nullableValue(p.Membership), true
	case FieldMemberNumber:
		return nullableValue(p.MemberNumber), true
	case FieldLegalName:
		return nullableValue(p.LegalName), true
	case FieldPublicFirstName:
		return nullableValue(p.PublicFirstName), true
	case FieldPublicLastName:
		return nullableValue(p.PublicLastName), true
	case FieldEmail:
		return nullableValue(p.Email), true
	case FieldCity:
		return nullableValue(p.City), true
	case FieldState:
		return nullableValue(p.State), true
	case FieldCountry:
		return nullableValue(p.Country), true
	case FieldBadgeName:
		return nullableValue(p.BadgeName), true
	case FieldBadgeSubtitle:
		return nullableValue(p.BadgeSubtitle), true
	case FieldPaperPubs:
		if p.CleanPaperPubs == nil {
			return nil, true
		}
		return p.CleanPaperPubs, true
	case FieldHugoNominator:
		return nullableValue(p.HugoNominator), true
	case FieldHugoVoter:
		return nullableValue(p.HugoVoter), true
	}
	return nil, false
}

// Apply writes the given fields of the patch onto a person.
func (p PersonPatch) Apply(dst *Person, fields []string) {
	for _, f := range fields {
		switch f {
		case FieldMembership:
			dst.Membership = p.Membership.MustGet()
		case FieldMemberNumber:
			dst.MemberNumber = nullablePtr(p.MemberNumber)
		case FieldLegalName:
			dst.LegalName = p.LegalName.MustGet()
		case FieldPublicFirstName:
			dst.PublicFirstName = nullablePtr(p.PublicFirstName)
		case FieldPublicLastName:
			dst.PublicLastName = nullablePtr(p.PublicLastName)
		case FieldEmail:
			dst.Email = p.Email.MustGet()
		case FieldCity:
			dst.City = nullablePtr(p.City)
		case FieldState:
			dst.State = nullablePtr(p.State)
		case FieldCountry:
			dst.Country = nullablePtr(p.Country)
		case FieldBadgeName:
			dst.BadgeName = nullablePtr(p.BadgeName)
		case FieldBadgeSubtitle:
			dst.BadgeSubtitle = nullablePtr(p.BadgeSubtitle)
		case FieldPaperPubs:
			if p.CleanPaperPubs == nil {
				dst.PaperPubs = nil
			} else {
				pp := *p.CleanPaperPubs
				dst.PaperPubs = &pp
			}
		case FieldHugoNominator:
			dst.HugoNominator = p.HugoNominator.MustGet()
		case FieldHugoVoter:
			dst.HugoVoter = p.HugoVoter.MustGet()
		}
	}
}

// Parameters renders the given fields as an audit-log parameter map.
func (p PersonPatch) Parameters(fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, _ := p.Value(f)
		out[f] = v
	}
	return out
}

func nullableValue[T any](n nullable.Nullable[T]) any {
	if n.IsNull() {
		return nil
	}
	return n.MustGet()
}

func nullablePtr[T any](n nullable.Nullable[T]) *T {
	if n.IsNull() || !n.IsSpecified() {
		return nil
	}
	v := n.MustGet()
	return &v
}
