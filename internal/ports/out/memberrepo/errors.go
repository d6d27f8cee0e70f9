package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested person does not exist.
	ErrNotFound = errors.New("person not found")

	// ErrGuardRejected indicates a conditional update matched the person's row id but its
	// guard condition excluded the row, so nothing was written.
	ErrGuardRejected = errors.New("update guard rejected row")

	// ErrDayPassExists indicates a day-pass grant already exists for the person.
	ErrDayPassExists = errors.New("day pass already exists")

	// ErrMemberNumberTaken indicates the member number belongs to another person.
	ErrMemberNumberTaken = errors.New("member number already assigned")

	// ErrNonMemberNumber indicates a write would leave a NonMember row with a member number.
	ErrNonMemberNumber = errors.New("member number set on NonMember")
)
