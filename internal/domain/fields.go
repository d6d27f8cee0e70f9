package domain

// Field names of a person record, as used in request bodies, update statements and audit
// entries.
const (
	FieldMembership      = "membership"
	FieldMemberNumber    = "member_number"
	FieldLegalName       = "legal_name"
	FieldPublicFirstName = "public_first_name"
	FieldPublicLastName  = "public_last_name"
	FieldEmail           = "email"
	FieldCity            = "city"
	FieldState           = "state"
	FieldCountry         = "country"
	FieldBadgeName       = "badge_name"
	FieldBadgeSubtitle   = "badge_subtitle"
	FieldPaperPubs       = "paper_pubs"
	FieldHugoNominator   = "hugo_nominator"
	FieldHugoVoter       = "hugo_voter"
)

// AdminFields are the fields a member administrator may update.
var AdminFields = []string{
	FieldMembership,
	FieldMemberNumber,
	FieldLegalName,
	FieldPublicFirstName,
	FieldPublicLastName,
	FieldEmail,
	FieldCity,
	FieldState,
	FieldCountry,
	FieldBadgeName,
	FieldBadgeSubtitle,
	FieldPaperPubs,
	FieldHugoNominator,
	FieldHugoVoter,
}

// SelfServiceFields are the fields a person may update on their own record.
var SelfServiceFields = []string{
	FieldLegalName,
	FieldPublicFirstName,
	FieldPublicLastName,
	FieldEmail,
	FieldCity,
	FieldState,
	FieldCountry,
	FieldBadgeName,
	FieldBadgeSubtitle,
	FieldPaperPubs,
}
