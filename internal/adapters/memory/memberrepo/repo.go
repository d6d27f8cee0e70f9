package memberrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convention-registry/member-api/internal/domain"
	platformclock "github.com/convention-registry/member-api/internal/platform/clock"
	clockport "github.com/convention-registry/member-api/internal/ports/out/clock"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

type state struct {
	people    map[domain.PersonID]domain.Person
	dayPasses map[domain.PersonID]domain.DayPass
	log       []memberrepo.LogEntry

	lastID           int64
	lastMemberNumber int64
}

// Repo is an in-memory implementation of memberrepo.Repository.
// It is safe for concurrent use. Transactions are serialized and work on a copy of the
// state that replaces it only when the transaction function succeeds.
type Repo struct {
	mu  sync.RWMutex
	st  state
	clk clockport.Clock
}

func NewRepo() *Repo {
	return NewRepoWithClock(platformclock.NewSystemClock())
}

// NewRepoWithClock stamps LastModified from clk.
func NewRepoWithClock(clk clockport.Clock) *Repo {
	return &Repo{
		st: state{
			people:    make(map[domain.PersonID]domain.Person),
			dayPasses: make(map[domain.PersonID]domain.DayPass),
		},
		clk: clk,
	}
}

func (r *Repo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx memberrepo.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.st.clone()
	if err := fn(ctx, &tx{st: &work, now: r.clk.Now}); err != nil {
		return err
	}
	r.st = work
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.PersonID) (domain.Person, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.st.people[id]
	if !ok {
		return domain.Person{}, memberrepo.ErrNotFound
	}
	return clonePerson(p), nil
}

func (r *Repo) GetDayPass(ctx context.Context, id domain.PersonID) (domain.DayPass, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.st.dayPasses[id]
	if !ok {
		return domain.DayPass{}, false, nil
	}
	d.Days = append([]domain.Day(nil), d.Days...)
	return d, true, nil
}

func (r *Repo) ListByEmail(ctx context.Context, email string) ([]domain.Person, error) {
	_ = ctx
	want := domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Person, 0)
	if want == "" {
		return out, nil
	}
	for _, p := range r.st.people {
		if domain.NormalizeEmail(p.Email) == want {
			out = append(out, clonePerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) ListEmails(ctx context.Context) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, p := range r.st.people {
		e := domain.NormalizeEmail(p.Email)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repo) ListLog(ctx context.Context, subject domain.PersonID) ([]memberrepo.LogEntry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberrepo.LogEntry, 0)
	for _, e := range r.st.log {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) InsertPerson(ctx context.Context, p domain.Person) (memberrepo.Inserted, error) {
	if err := ctx.Err(); err != nil {
		return memberrepo.Inserted{}, err
	}
	switch {
	case p.Membership == domain.MembershipNonMember:
		p.MemberNumber = nil
	case p.MemberNumber == nil:
		t.st.lastMemberNumber++
		n := t.st.lastMemberNumber
		p.MemberNumber = &n
	default:
		if t.numberTaken(*p.MemberNumber, 0) {
			return memberrepo.Inserted{}, memberrepo.ErrMemberNumberTaken
		}
		t.advanceNumber(*p.MemberNumber)
	}

	t.st.lastID++
	p.ID = domain.PersonID(t.st.lastID)
	p.LastModified = t.now().UTC()
	t.st.people[p.ID] = clonePerson(p)
	return memberrepo.Inserted{ID: p.ID, MemberNumber: cloneInt64Ptr(p.MemberNumber)}, nil
}

func (t *tx) InsertDayPass(ctx context.Context, d domain.DayPass) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.st.people[d.PersonID]; !ok {
		return memberrepo.ErrNotFound
	}
	if _, ok := t.st.dayPasses[d.PersonID]; ok {
		return memberrepo.ErrDayPassExists
	}
	d.Days = append([]domain.Day(nil), d.Days...)
	t.st.dayPasses[d.PersonID] = d
	return nil
}

func (t *tx) UpdatePerson(ctx context.Context, u memberrepo.Update) (memberrepo.Updated, error) {
	if err := ctx.Err(); err != nil {
		return memberrepo.Updated{}, err
	}
	p, ok := t.st.people[u.ID]
	if !ok {
		return memberrepo.Updated{}, memberrepo.ErrNotFound
	}
	if u.RequirePaperPubs && p.PaperPubs == nil {
		return memberrepo.Updated{}, memberrepo.ErrGuardRejected
	}
	prev := p.Email
	u.Patch.Apply(&p, u.Fields)
	if n := p.MemberNumber; n != nil {
		if p.Membership == domain.MembershipNonMember {
			return memberrepo.Updated{}, memberrepo.ErrNonMemberNumber
		}
		if t.numberTaken(*n, u.ID) {
			return memberrepo.Updated{}, memberrepo.ErrMemberNumberTaken
		}
		t.advanceNumber(*n)
	}
	p.LastModified = t.now().UTC()
	t.st.people[u.ID] = p
	return memberrepo.Updated{
		PrevEmail:     prev,
		NextEmail:     p.Email,
		HugoNominator: p.HugoNominator,
		HugoVoter:     p.HugoVoter,
		Name:          p.PreferredName(),
	}, nil
}

func (t *tx) AppendLog(ctx context.Context, e memberrepo.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.st.people[e.Subject]; !ok {
		return memberrepo.ErrNotFound
	}
	t.st.log = append(t.st.log, e)
	return nil
}

// numberTaken reports whether a person other than self holds member number n.
func (t *tx) numberTaken(n int64, self domain.PersonID) bool {
	for id, p := range t.st.people {
		if id != self && p.MemberNumber != nil && *p.MemberNumber == n {
			return true
		}
	}
	return false
}

func (t *tx) advanceNumber(n int64) {
	if n > t.st.lastMemberNumber {
		t.st.lastMemberNumber = n
	}
}

func (s state) clone() state {
	out := s
	out.people = make(map[domain.PersonID]domain.Person, len(s.people))
	for id, p := range s.people {
		out.people[id] = clonePerson(p)
	}
	out.dayPasses = make(map[domain.PersonID]domain.DayPass, len(s.dayPasses))
	for id, d := range s.dayPasses {
		out.dayPasses[id] = d
	}
	out.log = append([]memberrepo.LogEntry(nil), s.log...)
	return out
}

func clonePerson(p domain.Person) domain.Person {
	out := p
	out.MemberNumber = cloneInt64Ptr(p.MemberNumber)
	out.PublicFirstName = cloneStringPtr(p.PublicFirstName)
	out.PublicLastName = cloneStringPtr(p.PublicLastName)
	out.City = cloneStringPtr(p.City)
	out.State = cloneStringPtr(p.State)
	out.Country = cloneStringPtr(p.Country)
	out.BadgeName = cloneStringPtr(p.BadgeName)
	out.BadgeSubtitle = cloneStringPtr(p.BadgeSubtitle)
	if p.PaperPubs != nil {
		pp := *p.PaperPubs
		out.PaperPubs = &pp
	}
	return out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt64Ptr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
