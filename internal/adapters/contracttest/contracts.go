package contracttest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/nullable"

	"github.com/convention-registry/member-api/internal/domain"
	idempotencyport "github.com/convention-registry/member-api/internal/ports/out/idempotency"
	keyrepoport "github.com/convention-registry/member-api/internal/ports/out/keyrepo"
	memberrepoport "github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

type CleanupFunc = func()

type MemberRepoFactory func(t *testing.T) (memberrepoport.Repository, CleanupFunc)
type KeyStoreFactory func(t *testing.T) (keyrepoport.Store, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key(uuid.NewString()),
		Actor:    "admin@example.com",
		Method:   "POST",
		Route:    "/people",
		BodyHash: "abc123",
	}
	rec := idempotencyport.Record{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"status":"success","id":1}`),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != string(rec.Body) || got.ContentType != rec.ContentType || got.StatusCode != rec.StatusCode {
		t.Fatalf("unexpected record: %+v", got)
	}

	// A different body hash is a different request.
	other := fp
	other.BodyHash = "def456"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("expected miss for other body, got ok=%v err=%v", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"status":"success","id":2}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != string(rec2.Body) {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}
}

func RunKeyStore(t *testing.T, newStore KeyStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	email := "Key-" + uuid.NewString() + "@Example.com"
	if _, err := store.FindByEmail(ctx, email); !errors.Is(err, keyrepoport.ErrNotFound) {
		t.Fatalf("FindByEmail before issue: err=%v, want ErrNotFound", err)
	}
	k, err := store.Issue(ctx, email)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if k.Key == "" || k.Email != strings.ToLower(email) {
		t.Fatalf("unexpected key: %+v", k)
	}

	// Lookup is case-insensitive.
	got, err := store.FindByEmail(ctx, strings.ToUpper(email))
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.Key != k.Key {
		t.Fatalf("FindByEmail key=%q, want %q", got.Key, k.Key)
	}

	if _, err := store.Issue(ctx, email); !errors.Is(err, keyrepoport.ErrKeyExists) {
		t.Fatalf("second Issue: err=%v, want ErrKeyExists", err)
	}
}

func RunMemberRepo(t *testing.T, newRepo MemberRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	email := "member-" + uuid.NewString() + "@example.com"
	city := "Helsinki"

	var adult, nonMember memberrepoport.Inserted
	err := repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		var err error
		adult, err = tx.InsertPerson(ctx, domain.Person{
			Membership:    domain.MembershipAdult,
			LegalName:     "Alice Johnson",
			Email:         email,
			City:          &city,
			HugoNominator: true,
		})
		if err != nil {
			return err
		}
		nonMember, err = tx.InsertPerson(ctx, domain.Person{
			Membership: domain.MembershipNonMember,
			LegalName:  "Bob Johnson",
			Email:      strings.ToUpper(email),
		})
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, memberrepoport.LogEntry{
			Subject:     adult.ID,
			Actor:       memberrepoport.Actor{Author: "admin@example.com", ClientIP: "127.0.0.1"},
			Description: "Add new person",
			Parameters:  map[string]any{domain.FieldLegalName: "Alice Johnson"},
			Timestamp:   now,
		})
	})
	if err != nil {
		t.Fatalf("RunInTx insert: %v", err)
	}
	if adult.MemberNumber == nil {
		t.Fatalf("expected member number for Adult")
	}
	if nonMember.MemberNumber != nil {
		t.Fatalf("expected no member number for NonMember, got %d", *nonMember.MemberNumber)
	}

	got, err := repo.GetByID(ctx, adult.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.LegalName != "Alice Johnson" || got.City == nil || *got.City != city || !got.HugoNominator {
		t.Fatalf("unexpected person: %#v", got)
	}
	if _, err := repo.GetByID(ctx, domain.PersonID(1<<40)); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing: err=%v, want ErrNotFound", err)
	}

	// Email matching is case-insensitive and ordered by id.
	same, err := repo.ListByEmail(ctx, email)
	if err != nil {
		t.Fatalf("ListByEmail: %v", err)
	}
	if len(same) != 2 || same[0].ID != adult.ID || same[1].ID != nonMember.ID {
		t.Fatalf("unexpected ListByEmail: %#v", same)
	}
	emails, err := repo.ListEmails(ctx)
	if err != nil {
		t.Fatalf("ListEmails: %v", err)
	}
	if n := countString(emails, strings.ToLower(email)); n != 1 {
		t.Fatalf("ListEmails contains %q %d times, want 1", email, n)
	}

	// Update returns the previous and next email read from the same statement.
	var patch domain.PersonPatch
	patch.Email = nullable.NewNullableWithValue("moved-" + email)
	patch.City.SetNull()
	var upd memberrepoport.Updated
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		var err error
		upd, err = tx.UpdatePerson(ctx, memberrepoport.Update{
			ID:     adult.ID,
			Patch:  patch,
			Fields: []string{domain.FieldEmail, domain.FieldCity},
		})
		return err
	})
	if err != nil {
		t.Fatalf("UpdatePerson: %v", err)
	}
	if upd.PrevEmail != email || upd.NextEmail != "moved-"+email || !upd.HugoNominator || upd.Name != "Alice Johnson" {
		t.Fatalf("unexpected Updated: %#v", upd)
	}
	got, _ = repo.GetByID(ctx, adult.ID)
	if got.City != nil || got.Email != "moved-"+email {
		t.Fatalf("update not applied: %#v", got)
	}

	// The paper_pubs guard distinguishes a missing row from a rejected one.
	var pp domain.PersonPatch
	pp.PaperPubs = nullable.NewNullableWithValue(json.RawMessage(`{"name":"A","address":"B","country":"C"}`))
	pp.CleanPaperPubs = &domain.PaperPubs{Name: "A", Address: "B", Country: "C"}
	guarded := memberrepoport.Update{ID: adult.ID, Patch: pp, Fields: []string{domain.FieldPaperPubs}, RequirePaperPubs: true}
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		_, err := tx.UpdatePerson(ctx, guarded)
		return err
	})
	if !errors.Is(err, memberrepoport.ErrGuardRejected) {
		t.Fatalf("guarded update: err=%v, want ErrGuardRejected", err)
	}
	guarded.ID = domain.PersonID(1 << 40)
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		_, err := tx.UpdatePerson(ctx, guarded)
		return err
	})
	if !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("guarded update of missing row: err=%v, want ErrNotFound", err)
	}

	// A failing transaction leaves no trace.
	boom := errors.New("boom")
	var rolledBack memberrepoport.Inserted
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		var err error
		rolledBack, err = tx.InsertPerson(ctx, domain.Person{
			Membership: domain.MembershipAdult,
			LegalName:  "Rolled Back",
			Email:      "rollback-" + email,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, memberrepoport.LogEntry{Subject: rolledBack.ID, Description: "Add new person", Timestamp: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx rollback: err=%v, want boom", err)
	}
	if _, err := repo.GetByID(ctx, rolledBack.ID); !errors.Is(err, memberrepoport.ErrNotFound) {
		t.Fatalf("rolled back person visible: err=%v", err)
	}
	if entries, err := repo.ListLog(ctx, rolledBack.ID); err != nil || len(entries) != 0 {
		t.Fatalf("rolled back log visible: n=%d err=%v", len(entries), err)
	}

	// Day passes.
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		return tx.InsertDayPass(ctx, domain.DayPass{
			PersonID: nonMember.ID,
			Status:   domain.MembershipAdult,
			Days:     []domain.Day{domain.DayThu, domain.DaySat},
		})
	})
	if err != nil {
		t.Fatalf("InsertDayPass: %v", err)
	}
	dp, ok, err := repo.GetDayPass(ctx, nonMember.ID)
	if err != nil || !ok {
		t.Fatalf("GetDayPass: ok=%v err=%v", ok, err)
	}
	if dp.Status != domain.MembershipAdult || !dp.Has(domain.DayThu) || !dp.Has(domain.DaySat) || dp.Has(domain.DayWed) {
		t.Fatalf("unexpected day pass: %#v", dp)
	}
	if _, ok, err := repo.GetDayPass(ctx, adult.ID); err != nil || ok {
		t.Fatalf("GetDayPass without grant: ok=%v err=%v", ok, err)
	}

	// Log entries come back in timestamp order with their parameters.
	err = repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
		return tx.AppendLog(ctx, memberrepoport.LogEntry{
			Subject:     adult.ID,
			Actor:       memberrepoport.Actor{Author: "alice@example.com"},
			Description: "Update fields: legal_name",
			Parameters:  map[string]any{domain.FieldLegalName: "Alice Smith"},
			Timestamp:   now.Add(time.Hour),
		})
	})
	if err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	entries, err := repo.ListLog(ctx, adult.ID)
	if err != nil {
		t.Fatalf("ListLog: %v", err)
	}
	if len(entries) != 2 || entries[0].Description != "Add new person" || entries[1].Parameters[domain.FieldLegalName] != "Alice Smith" {
		t.Fatalf("unexpected log: %#v", entries)
	}
	if entries[0].Actor.Author != "admin@example.com" {
		t.Fatalf("unexpected actor: %#v", entries[0].Actor)
	}

	runMemberNumbers(t, repo)
}

// runMemberNumbers checks that member numbers stay unique, stay off NonMember rows,
// and are never generated again once assigned explicitly.
func runMemberNumbers(t *testing.T, repo memberrepoport.Repository) {
	t.Helper()
	ctx := context.Background()

	insert := func(p domain.Person) (memberrepoport.Inserted, error) {
		var ins memberrepoport.Inserted
		err := repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
			var err error
			ins, err = tx.InsertPerson(ctx, p)
			return err
		})
		return ins, err
	}
	setNumber := func(id domain.PersonID, n int64) error {
		var patch domain.PersonPatch
		patch.MemberNumber = nullable.NewNullableWithValue(n)
		return repo.RunInTx(ctx, func(ctx context.Context, tx memberrepoport.Tx) error {
			_, err := tx.UpdatePerson(ctx, memberrepoport.Update{ID: id, Patch: patch, Fields: []string{domain.FieldMemberNumber}})
			return err
		})
	}

	n := 1_000_000 + int64(uuid.New().ID()%1_000_000)*100
	holder, err := insert(domain.Person{Membership: domain.MembershipAdult, LegalName: "Number Holder", MemberNumber: &n})
	if err != nil {
		t.Fatalf("InsertPerson explicit number: %v", err)
	}
	if holder.MemberNumber == nil || *holder.MemberNumber != n {
		t.Fatalf("MemberNumber=%v, want %d", holder.MemberNumber, n)
	}
	if _, err := insert(domain.Person{Membership: domain.MembershipAdult, LegalName: "Duplicate", MemberNumber: &n}); !errors.Is(err, memberrepoport.ErrMemberNumberTaken) {
		t.Fatalf("duplicate explicit number: err=%v, want ErrMemberNumberTaken", err)
	}

	nonMember, err := insert(domain.Person{Membership: domain.MembershipNonMember, LegalName: "No Number"})
	if err != nil {
		t.Fatalf("InsertPerson NonMember: %v", err)
	}
	if err := setNumber(nonMember.ID, n+1); !errors.Is(err, memberrepoport.ErrNonMemberNumber) {
		t.Fatalf("number on NonMember: err=%v, want ErrNonMemberNumber", err)
	}
	if got, _ := repo.GetByID(ctx, nonMember.ID); got.MemberNumber != nil {
		t.Fatalf("NonMember kept number %d", *got.MemberNumber)
	}

	other, err := insert(domain.Person{Membership: domain.MembershipAdult, LegalName: "Other"})
	if err != nil {
		t.Fatalf("InsertPerson generated number: %v", err)
	}
	if err := setNumber(other.ID, n); !errors.Is(err, memberrepoport.ErrMemberNumberTaken) {
		t.Fatalf("duplicate number on update: err=%v, want ErrMemberNumberTaken", err)
	}
	if err := setNumber(other.ID, n+10); err != nil {
		t.Fatalf("assign number on update: %v", err)
	}
	next, err := insert(domain.Person{Membership: domain.MembershipAdult, LegalName: "Next"})
	if err != nil {
		t.Fatalf("InsertPerson after assigned number: %v", err)
	}
	if next.MemberNumber == nil || *next.MemberNumber <= n+10 {
		t.Fatalf("generated MemberNumber=%v, want above %d", next.MemberNumber, n+10)
	}
}

func countString(xs []string, s string) int {
	n := 0
	for _, x := range xs {
		if x == s {
			n++
		}
	}
	return n
}
