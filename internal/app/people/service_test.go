package people

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memclock "github.com/convention-registry/member-api/internal/adapters/memory/clock"
	memkeyrepo "github.com/convention-registry/member-api/internal/adapters/memory/keyrepo"
	memmemberrepo "github.com/convention-registry/member-api/internal/adapters/memory/memberrepo"
	memnotifier "github.com/convention-registry/member-api/internal/adapters/memory/notifier"
	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/platform/metrics"
	"github.com/convention-registry/member-api/internal/ports/out/keyrepo"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
	"github.com/convention-registry/member-api/internal/ports/out/notifier"
)

// events records the order of post-commit side effects across collaborators.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type recordingSyncer struct{ ev *events }

func (s recordingSyncer) Upsert(_ context.Context, email string) { s.ev.add("upsert:" + email) }
func (s recordingSyncer) Remove(_ context.Context, email string) { s.ev.add("remove:" + email) }

type recordingNotifier struct {
	ev  *events
	out *memnotifier.Outbox
}

func (n recordingNotifier) SendAccountMessage(ctx context.Context, msg notifier.AccountMessage) error {
	n.ev.add("notify:" + msg.Email)
	return n.out.SendAccountMessage(ctx, msg)
}

// countingKeys wraps a key store and counts calls.
type countingKeys struct {
	keyrepo.Store
	mu     sync.Mutex
	finds  int
	issues int
}

func (k *countingKeys) FindByEmail(ctx context.Context, email string) (keyrepo.Key, error) {
	k.mu.Lock()
	k.finds++
	k.mu.Unlock()
	return k.Store.FindByEmail(ctx, email)
}

func (k *countingKeys) Issue(ctx context.Context, email string) (keyrepo.Key, error) {
	k.mu.Lock()
	k.issues++
	k.mu.Unlock()
	return k.Store.Issue(ctx, email)
}

type harness struct {
	svc    *Service
	repo   *memmemberrepo.Repo
	keys   *countingKeys
	outbox *memnotifier.Outbox
	ev     *events
	met    *metrics.Metrics
	clk    *memclock.ManualClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC))
	h := &harness{
		repo:   memmemberrepo.NewRepoWithClock(clk),
		keys:   &countingKeys{Store: memkeyrepo.NewStore()},
		outbox: memnotifier.NewOutbox(),
		ev:     &events{},
		met:    metrics.New(prometheus.NewRegistry()),
		clk:    clk,
	}
	h.svc = NewService(Deps{
		Repo:     h.repo,
		Keys:     h.keys,
		Notifier: recordingNotifier{ev: h.ev, out: h.outbox},
		MailSync: recordingSyncer{ev: h.ev},
		Clock:    h.clk,
		Metrics:  h.met,
	}, opts)
	return h
}

var admin = memberrepo.Actor{Author: "admin@example.org", ClientIP: "10.0.0.1", ClientInfo: "test"}

func (h *harness) create(t *testing.T, p NewPerson, days ...string) CreateMemberResult {
	t.Helper()
	res, err := h.svc.CreateMember(context.Background(), CreateMemberInput{Person: p, DayPassDays: days, Actor: admin})
	require.NoError(t, err)
	return res
}

func (h *harness) logCount(t *testing.T, id domain.PersonID) int {
	t.Helper()
	entries, err := h.repo.ListLog(context.Background(), id)
	require.NoError(t, err)
	return len(entries)
}

func mustPatch(t *testing.T, body string) domain.PersonPatch {
	t.Helper()
	var p domain.PersonPatch
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

func appErr(t *testing.T, err error) *Error {
	t.Helper()
	var ae *Error
	require.True(t, errors.As(err, &ae), "want *Error, got %v", err)
	return ae
}

func TestCreateMember_DayPassStoresNonMemberWithGrant(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "Dana Day", Email: "dana@example.org"}, "sat", "thu")
	assert.Nil(t, res.MemberNumber)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipNonMember, got.Membership)
	assert.Nil(t, got.MemberNumber)
	require.NotNil(t, got.DayPass)
	assert.Equal(t, domain.MembershipAdult, got.DayPass.Status)
	assert.Equal(t, []domain.Day{domain.DayThu, domain.DaySat}, got.DayPass.Days)

	entries, err := h.repo.ListLog(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Add new person", entries[0].Description)
	assert.Equal(t, admin, entries[0].Actor)
}

func TestCreateMember_StandardMembershipGetsNumber(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	res := h.create(t, NewPerson{Membership: domain.MembershipSupporter, LegalName: "  Sam   Support ", Email: "sam@example.org"})
	require.NotNil(t, res.MemberNumber)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipSupporter, got.Membership)
	assert.Equal(t, res.MemberNumber, got.MemberNumber)
	assert.Equal(t, "Sam Support", got.LegalName)
	assert.Nil(t, got.DayPass)
	assert.Equal(t, 1, h.logCount(t, res.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.PeopleCreated))
	assert.Empty(t, h.ev.all())
}

func TestCreateMember_InputErrors(t *testing.T) {
	t.Parallel()

	n := int64(12)
	cases := []struct {
		name string
		p    NewPerson
		days []string
	}{
		{name: "missing membership", p: NewPerson{LegalName: "A"}},
		{name: "unknown membership", p: NewPerson{Membership: "Lifetime", LegalName: "A"}},
		{name: "missing legal name", p: NewPerson{Membership: domain.MembershipAdult}},
		{name: "bad email", p: NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "nope"}},
		{name: "non member with number", p: NewPerson{Membership: domain.MembershipNonMember, LegalName: "A", MemberNumber: &n}},
		{name: "incomplete paper pubs", p: NewPerson{Membership: domain.MembershipAdult, LegalName: "A", PaperPubs: json.RawMessage(`{"name":"A"}`)}},
		{name: "unknown day", p: NewPerson{Membership: domain.MembershipAdult, LegalName: "A"}, days: []string{"mon"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, Options{})
			_, err := h.svc.CreateMember(context.Background(), CreateMemberInput{Person: tc.p, DayPassDays: tc.days, Actor: admin})
			ae := appErr(t, err)
			assert.Equal(t, CodeInputError, ae.Code)
			assert.Equal(t, http.StatusBadRequest, ae.Status)

			emails, err := h.repo.ListEmails(context.Background())
			require.NoError(t, err)
			assert.Empty(t, emails)
		})
	}
}

func TestUpdateMember_UnrecognizedFieldsOnly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@example.org"})

	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"favourite_colour":"red"}`), Admin: true})
	ae := appErr(t, err)
	assert.Equal(t, CodeInputError, ae.Code)
	assert.Equal(t, "No valid parameters", ae.Message)

	// Admin-only fields are not recognized for self-service.
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"membership":"Supporter","hugo_voter":true}`)})
	assert.True(t, IsCode(err, CodeInputError))

	assert.Equal(t, 1, h.logCount(t, res.ID))
	assert.Empty(t, h.ev.all())
}

func TestUpdateMember_NonEmailChangeOnlyUpserts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@example.org", HugoVoter: true})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"city":"Glasgow","badge_name":null}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldCity, domain.FieldBadgeName}, out.Updated)
	assert.False(t, out.KeySent)

	assert.Equal(t, []string{"upsert:a@example.org"}, h.ev.all())
	assert.Zero(t, h.keys.finds)
	assert.Zero(t, h.keys.issues)
	assert.Empty(t, h.outbox.Sent())

	entries, err := h.repo.ListLog(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Update fields: city, badge_name", entries[1].Description)
	assert.Equal(t, map[string]any{"city": "Glasgow", "badge_name": nil}, entries[1].Parameters)
}

func TestUpdateMember_EmailChangeIssuesKeyAndNotifies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "Vera Voter", Email: "a@x.org", HugoVoter: true})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":"b@x.org"}`)})
	require.NoError(t, err)
	assert.True(t, out.KeySent)
	assert.Equal(t, []string{domain.FieldEmail}, out.Updated)

	assert.Equal(t, []string{"remove:a@x.org", "notify:b@x.org", "upsert:b@x.org"}, h.ev.all())
	assert.Equal(t, 1, h.keys.issues)

	key, err := h.keys.Store.FindByEmail(context.Background(), "b@x.org")
	require.NoError(t, err)
	sent := h.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.AccountMessage{Email: "b@x.org", Key: key.Key, MemberID: res.ID, Name: "Vera Voter"}, sent[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.KeysIssued))
}

func TestUpdateMember_EmailChangeReusesExistingKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "N", Email: "a@x.org", HugoNominator: true})
	existing, err := h.keys.Store.Issue(context.Background(), "b@x.org")
	require.NoError(t, err)

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":"B@x.org"}`), Admin: true})
	require.NoError(t, err)
	assert.True(t, out.KeySent)
	assert.Zero(t, h.keys.issues)
	require.Len(t, h.outbox.Sent(), 1)
	assert.Equal(t, existing.Key, h.outbox.Sent()[0].Key)
}

func TestUpdateMember_EmailChangeWithoutRightsSendsNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipSupporter, LegalName: "S", Email: "a@x.org"})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":"b@x.org"}`)})
	require.NoError(t, err)
	assert.False(t, out.KeySent)
	assert.Zero(t, h.keys.issues)
	assert.Equal(t, []string{"remove:a@x.org", "upsert:b@x.org"}, h.ev.all())
}

func TestUpdateMember_SameEmailDoesNotNotify(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "V", Email: "a@x.org", HugoVoter: true})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":" a@x.org "}`)})
	require.NoError(t, err)
	assert.False(t, out.KeySent)
	assert.Zero(t, h.keys.issues)
	assert.Equal(t, []string{"upsert:a@x.org"}, h.ev.all())
}

// racingKeys simulates a concurrent issuer storing the key between lookup and issue.
type racingKeys struct {
	mu     sync.Mutex
	stored *keyrepo.Key
	issues int
}

func (k *racingKeys) FindByEmail(_ context.Context, email string) (keyrepo.Key, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stored == nil {
		return keyrepo.Key{}, keyrepo.ErrNotFound
	}
	return *k.stored, nil
}

func (k *racingKeys) Issue(_ context.Context, email string) (keyrepo.Key, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.issues++
	k.stored = &keyrepo.Key{Email: email, Key: "winner"}
	return keyrepo.Key{}, keyrepo.ErrKeyExists
}

func TestUpdateMember_KeyIssueRaceUsesStoredKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	keys := &racingKeys{}
	h.svc.keys = keys
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "V", Email: "a@x.org", HugoVoter: true})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":"b@x.org"}`)})
	require.NoError(t, err)
	assert.True(t, out.KeySent)
	assert.Equal(t, 1, keys.issues)
	require.Len(t, h.outbox.Sent(), 1)
	assert.Equal(t, "winner", h.outbox.Sent()[0].Key)
}

func TestUpdateMember_NotificationFailureKeepsUpdate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	h.outbox.Err = errors.New("smtp down")
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "V", Email: "a@x.org", HugoVoter: true})

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"email":"b@x.org"}`)})
	require.NoError(t, err)
	assert.False(t, out.KeySent)
	assert.Equal(t, []string{"remove:a@x.org", "notify:b@x.org", "upsert:b@x.org"}, h.ev.all())

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.org", got.Email)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.met.AccountMessages.WithLabelValues("error")))
}

func TestUpdateMember_PaperPubsConsentGating(t *testing.T) {
	t.Parallel()

	const pubs = `{"name":"Pat","address":"1 Main St","country":"Finland"}`

	t.Run("null value is dropped for non-admin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{PaidPaperPubs: true})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org", PaperPubs: json.RawMessage(pubs)})

		out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":null,"city":"Turku"}`)})
		require.NoError(t, err)
		assert.Equal(t, []string{domain.FieldCity}, out.Updated)

		got, err := h.svc.GetPerson(context.Background(), res.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PaperPubs)
		assert.Equal(t, "Pat", got.PaperPubs.Name)
		require.NotNil(t, got.City)
		assert.Equal(t, "Turku", *got.City)
	})

	t.Run("non-admin cannot originate consent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{PaidPaperPubs: true})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org"})

		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":`+pubs+`,"city":"Turku"}`)})
		ae := appErr(t, err)
		assert.Equal(t, CodeConsentRequired, ae.Code)
		assert.Equal(t, http.StatusPaymentRequired, ae.Status)
		assert.Equal(t, "Paper publications have not been enabled for this person", ae.Message)

		got, err := h.svc.GetPerson(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Nil(t, got.City)
		assert.Nil(t, got.PaperPubs)
		assert.Equal(t, 1, h.logCount(t, res.ID))
		assert.Empty(t, h.ev.all())
		assert.Equal(t, 1.0, testutil.ToFloat64(h.met.ConsentRejections))
	})

	t.Run("non-admin may edit existing consent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{PaidPaperPubs: true})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org", PaperPubs: json.RawMessage(pubs)})

		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":{"name":"Pat","address":"2 Side St","country":"Finland","extra":1}}`)})
		require.NoError(t, err)

		got, err := h.svc.GetPerson(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Equal(t, &domain.PaperPubs{Name: "Pat", Address: "2 Side St", Country: "Finland"}, got.PaperPubs)
	})

	t.Run("admin bypasses gating", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{PaidPaperPubs: true})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org"})

		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":`+pubs+`}`), Admin: true})
		require.NoError(t, err)
		_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":null}`), Admin: true})
		require.NoError(t, err)

		got, err := h.svc.GetPerson(context.Background(), res.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PaperPubs)
	})

	t.Run("gating disabled", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org"})

		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":`+pubs+`}`)})
		require.NoError(t, err)
	})

	t.Run("malformed value", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Options{})
		res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "P", Email: "p@x.org"})

		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"paper_pubs":{"name":"P"}}`), Admin: true})
		ae := appErr(t, err)
		assert.Equal(t, CodeInputError, ae.Code)
		assert.Contains(t, ae.Message, "address")
	})
}

func TestUpdateMember_NotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{PaidPaperPubs: true})

	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: 99, Patch: mustPatch(t, `{"city":"X"}`)})
	assert.True(t, IsCode(err, CodeNotFound))

	// A guarded update of a missing row is still NOT_FOUND.
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: 99, Patch: mustPatch(t, `{"paper_pubs":{"name":"a","address":"b","country":"c"}}`)})
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestUpdateMember_MembershipToNonMemberClearsNumber(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})
	require.NotNil(t, res.MemberNumber)

	out, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"membership":"NonMember"}`), Admin: true})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FieldMembership, domain.FieldMemberNumber}, out.Updated)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipNonMember, got.Membership)
	assert.Nil(t, got.MemberNumber)

	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"membership":"NonMember","member_number":5}`), Admin: true})
	assert.True(t, IsCode(err, CodeInputError))
}

func TestUpdateMember_RejectsNullRequiredFields(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})

	for _, body := range []string{`{"legal_name":null}`, `{"legal_name":"   "}`, `{"email":null}`, `{"hugo_voter":null}`, `{"membership":"Lifetime"}`} {
		_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, body), Admin: true})
		assert.True(t, IsCode(err, CodeInputError), body)
	}
	assert.Equal(t, 1, h.logCount(t, res.ID))
}

func TestUpdateMember_ConcurrentUpdatesBothLogged(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})

	var wg sync.WaitGroup
	for _, city := range []string{"Oslo", "Bergen"} {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"city":"`+city+`"}`)})
			assert.NoError(t, err)
		}(city)
	}
	wg.Wait()

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, got.City)
	assert.Contains(t, []string{"Oslo", "Bergen"}, *got.City)
	assert.Equal(t, 3, h.logCount(t, res.ID))
}

func TestUpdateMember_StorageFailureIsOpaque(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	h.svc.repo = failingRepo{Repository: h.repo, err: errors.New("connection reset")}

	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: 1, Patch: mustPatch(t, `{"city":"X"}`)})
	ae := appErr(t, err)
	assert.Equal(t, CodeTransactionFailed, ae.Code)
	assert.Equal(t, http.StatusInternalServerError, ae.Status)
	assert.ErrorContains(t, err, "update person: connection reset")
}

type failingRepo struct {
	memberrepo.Repository
	err error
}

func (r failingRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx memberrepo.Tx) error) error {
	return r.Repository.RunInTx(ctx, func(ctx context.Context, tx memberrepo.Tx) error {
		return fn(ctx, failingTx{Tx: tx, err: r.err})
	})
}

type failingTx struct {
	memberrepo.Tx
	err error
}

func (t failingTx) UpdatePerson(context.Context, memberrepo.Update) (memberrepo.Updated, error) {
	return memberrepo.Updated{}, t.err
}

func TestPrevNames_FromLegalNameHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	t0 := h.clk.Now()
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "Alice Old", Email: "a@x.org"})

	h.clk.Advance(time.Hour)
	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"legal_name":"alice  old"}`), Admin: true})
	require.NoError(t, err)

	h.clk.Advance(time.Hour)
	t2 := h.clk.Now()
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"legal_name":"Alice New","city":"Espoo"}`), Admin: true})
	require.NoError(t, err)

	h.clk.Advance(time.Hour)
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"city":"Vantaa"}`)})
	require.NoError(t, err)

	names, err := h.svc.PrevNames(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, []PrevName{{Name: "Alice Old", From: t0, To: t2}}, names)

	_, err = h.svc.PrevNames(context.Background(), 404)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestGetPerson_NotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	_, err := h.svc.GetPerson(context.Background(), 7)
	ae := appErr(t, err)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}

func TestCreateMember_BlankLegalNameRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})

	_, err := h.svc.CreateMember(context.Background(), CreateMemberInput{Person: NewPerson{Membership: domain.MembershipAdult, LegalName: " \t "}, Actor: admin})
	assert.True(t, IsCode(err, CodeInputError))
}

func TestUpdateMember_MemberNumberOnNonMemberRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipNonMember, LegalName: "A", Email: "a@x.org"})

	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"member_number":7}`), Admin: true})
	ae := appErr(t, err)
	assert.Equal(t, CodeInputError, ae.Code)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Contains(t, ae.Details, domain.FieldMemberNumber)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MembershipNonMember, got.Membership)
	assert.Nil(t, got.MemberNumber)
	assert.Equal(t, 1, h.logCount(t, res.ID))
	assert.Empty(t, h.ev.all())

	// Upgrading in the same patch makes the number valid.
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"membership":"Adult","member_number":7}`), Admin: true})
	require.NoError(t, err)
	got, err = h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MemberNumber)
	assert.Equal(t, int64(7), *got.MemberNumber)
}

func TestMemberNumbers_StayUnique(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	a := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})
	b := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "B", Email: "b@x.org"})
	require.NotNil(t, a.MemberNumber)

	_, err := h.svc.CreateMember(context.Background(), CreateMemberInput{
		Person: NewPerson{Membership: domain.MembershipAdult, LegalName: "C", MemberNumber: a.MemberNumber},
		Actor:  admin,
	})
	assert.True(t, IsCode(err, CodeInputError), "explicit duplicate on create: %v", err)

	patch := `{"member_number":` + strconv.FormatInt(*a.MemberNumber, 10) + `}`
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: b.ID, Patch: mustPatch(t, patch), Admin: true})
	assert.True(t, IsCode(err, CodeInputError), "duplicate on update: %v", err)
	assert.Equal(t, 1, h.logCount(t, b.ID))

	// A number assigned by update is never generated again.
	_, err = h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: b.ID, Patch: mustPatch(t, `{"member_number":900}`), Admin: true})
	require.NoError(t, err)
	c := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "C", Email: "c@x.org"})
	require.NotNil(t, c.MemberNumber)
	assert.Equal(t, int64(901), *c.MemberNumber)
}

func TestUpdateMember_LegalNameNormalizedLikeCreate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})

	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"legal_name":"  Jane \t  Doe "}`), Admin: true})
	require.NoError(t, err)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.LegalName)

	entries, err := h.repo.ListLog(context.Background(), res.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Jane Doe", entries[1].Parameters[domain.FieldLegalName])
}

func TestUpdateMember_LastModifiedFollowsClock(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Options{})
	res := h.create(t, NewPerson{Membership: domain.MembershipAdult, LegalName: "A", Email: "a@x.org"})

	h.clk.Advance(time.Hour)
	_, err := h.svc.UpdateMember(context.Background(), UpdateMemberInput{ID: res.ID, Patch: mustPatch(t, `{"city":"Oslo"}`), Admin: true})
	require.NoError(t, err)

	got, err := h.svc.GetPerson(context.Background(), res.ID)
	require.NoError(t, err)
	assert.True(t, got.LastModified.Equal(h.clk.Now()), "LastModified=%v", got.LastModified)
}
