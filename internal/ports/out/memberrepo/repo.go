package memberrepo

import (
	"context"
	"time"

	"github.com/convention-registry/member-api/internal/domain"
)

// Inserted is the storage-generated part of a new person record.
type Inserted struct {
	ID           domain.PersonID
	MemberNumber *int64
}

// Update describes a partial update of one person row.
type Update struct {
	ID     domain.PersonID
	Patch  domain.PersonPatch
	Fields []string

	// RequirePaperPubs restricts the update to rows whose paper_pubs is already set.
	// A row that exists but fails this guard yields ErrGuardRejected.
	RequirePaperPubs bool
}

// Updated is read back from the same statement that applied an Update.
type Updated struct {
	PrevEmail     string
	NextEmail     string
	HugoNominator bool
	HugoVoter     bool
	// Name is the person's preferred name after the update.
	Name string
}

// Actor identifies who or what performed a logged mutation.
type Actor struct {
	Author     string
	ClientIP   string
	ClientInfo string
}

// LogEntry is an append-only audit record of one mutation.
type LogEntry struct {
	Subject     domain.PersonID
	Actor       Actor
	Description string
	// Parameters holds the written field values; legal_name entries are later used to
	// reconstruct previous names.
	Parameters map[string]any
	Timestamp  time.Time
}

// Tx is the set of writes available inside one atomic transaction. Every statement
// sees the effects of the statements before it.
//
// Member numbers are unique across persons (ErrMemberNumberTaken) and absent on
// NonMember rows (ErrNonMemberNumber). A number written explicitly moves the generator
// past it, so later generated numbers never collide with it.
type Tx interface {
	InsertPerson(ctx context.Context, p domain.Person) (Inserted, error)
	InsertDayPass(ctx context.Context, d domain.DayPass) error
	UpdatePerson(ctx context.Context, u Update) (Updated, error)
	AppendLog(ctx context.Context, e LogEntry) error
}

// Repository provides atomic writes and reads of persons, day passes and the audit log.
type Repository interface {
	// RunInTx runs fn in a single transaction. If fn returns an error nothing it wrote
	// is visible afterwards. The ctx passed to fn carries the transaction so other
	// stores sharing the same database may join it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetByID(ctx context.Context, id domain.PersonID) (domain.Person, error)
	// GetDayPass returns the person's day-pass grant; ok is false when none exists.
	GetDayPass(ctx context.Context, id domain.PersonID) (d domain.DayPass, ok bool, err error)

	// ListByEmail returns every person whose email matches case-insensitively, ordered by id.
	ListByEmail(ctx context.Context, email string) ([]domain.Person, error)
	// ListEmails returns the distinct lower-cased non-empty emails of all persons.
	ListEmails(ctx context.Context) ([]string, error)

	// ListLog returns the audit entries of a subject ordered by timestamp.
	ListLog(ctx context.Context, subject domain.PersonID) ([]LogEntry, error)
}
