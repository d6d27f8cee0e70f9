package domain

import "time"

// Membership is the membership tier of a person.
type Membership string

const (
	MembershipNonMember     Membership = "NonMember"
	MembershipSupporter     Membership = "Supporter"
	MembershipKidInTow      Membership = "KidInTow"
	MembershipChild         Membership = "Child"
	MembershipYouth         Membership = "Youth"
	MembershipFirstWorldcon Membership = "FirstWorldcon"
	MembershipAdult         Membership = "Adult"
	MembershipExhibitor     Membership = "Exhibitor"
	MembershipHelper        Membership = "Helper"
)

var memberships = []Membership{
	MembershipNonMember,
	MembershipSupporter,
	MembershipKidInTow,
	MembershipChild,
	MembershipYouth,
	MembershipFirstWorldcon,
	MembershipAdult,
	MembershipExhibitor,
	MembershipHelper,
}

func (m Membership) Valid() bool {
	for _, v := range memberships {
		if v == m {
			return true
		}
	}
	return false
}

// Person is a member record.
//
// MemberNumber is nil whenever Membership is NonMember.
type Person struct {
	ID           PersonID
	Membership   Membership
	MemberNumber *int64

	LegalName       string
	PublicFirstName *string
	PublicLastName  *string
	Email           string
	City            *string
	State           *string
	Country         *string
	BadgeName       *string
	BadgeSubtitle   *string

	PaperPubs *PaperPubs

	HugoNominator bool
	HugoVoter     bool

	LastModified time.Time
}

// PreferredName is the name used when addressing the person.
func (p Person) PreferredName() string {
	return PreferredName(p.LegalName, p.PublicFirstName, p.PublicLastName)
}

// CanVoteOrNominate reports whether the person holds any Hugo rights.
func (p Person) CanVoteOrNominate() bool { return p.HugoNominator || p.HugoVoter }

// PersonDetails is a person together with their day-pass grant, if any.
type PersonDetails struct {
	Person
	DayPass *DayPass
}
