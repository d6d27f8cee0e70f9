package memberrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oapi-codegen/nullable"

	memclock "github.com/convention-registry/member-api/internal/adapters/memory/clock"
	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

func insert(t *testing.T, r *Repo, p domain.Person) memberrepo.Inserted {
	t.Helper()
	var ins memberrepo.Inserted
	err := r.RunInTx(context.Background(), func(ctx context.Context, tx memberrepo.Tx) error {
		var err error
		ins, err = tx.InsertPerson(ctx, p)
		return err
	})
	if err != nil {
		t.Fatalf("InsertPerson() err=%v", err)
	}
	return ins
}

func TestRepo_MemberNumbersFollowExplicitOnes(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	explicit := int64(500)
	a := insert(t, r, domain.Person{Membership: domain.MembershipAdult, LegalName: "A", MemberNumber: &explicit})
	b := insert(t, r, domain.Person{Membership: domain.MembershipAdult, LegalName: "B"})

	if a.MemberNumber == nil || *a.MemberNumber != 500 {
		t.Fatalf("a.MemberNumber=%v, want 500", a.MemberNumber)
	}
	if b.MemberNumber == nil || *b.MemberNumber != 501 {
		t.Fatalf("b.MemberNumber=%v, want 501", b.MemberNumber)
	}
}

func TestRepo_NonMemberNeverGetsNumber(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	n := int64(7)
	ins := insert(t, r, domain.Person{Membership: domain.MembershipNonMember, LegalName: "A", MemberNumber: &n})
	if ins.MemberNumber != nil {
		t.Fatalf("MemberNumber=%d, want nil", *ins.MemberNumber)
	}
}

func TestRepo_ReturnedPersonIsACopy(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	city := "Oslo"
	ins := insert(t, r, domain.Person{Membership: domain.MembershipAdult, LegalName: "A", City: &city})

	got, err := r.GetByID(context.Background(), ins.ID)
	if err != nil {
		t.Fatalf("GetByID() err=%v", err)
	}
	*got.City = "Bergen"

	again, _ := r.GetByID(context.Background(), ins.ID)
	if *again.City != "Oslo" {
		t.Fatalf("City=%q, want Oslo", *again.City)
	}
}

func TestRepo_DuplicateDayPassRollsBack(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ins := insert(t, r, domain.Person{Membership: domain.MembershipNonMember, LegalName: "A"})
	grant := domain.DayPass{PersonID: ins.ID, Status: domain.MembershipAdult, Days: []domain.Day{domain.DayFri}}

	err := r.RunInTx(context.Background(), func(ctx context.Context, tx memberrepo.Tx) error {
		if err := tx.InsertDayPass(ctx, grant); err != nil {
			return err
		}
		return tx.InsertDayPass(ctx, grant)
	})
	if !errors.Is(err, memberrepo.ErrDayPassExists) {
		t.Fatalf("err=%v, want %v", err, memberrepo.ErrDayPassExists)
	}
	if _, ok, _ := r.GetDayPass(context.Background(), ins.ID); ok {
		t.Fatalf("day pass visible after rollback")
	}
}

func TestRepo_CanceledContextSkipsTransaction(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := r.RunInTx(ctx, func(context.Context, memberrepo.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err=%v called=%v, want context.Canceled and no call", err, called)
	}
}

func TestRepo_LastModifiedUsesClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC)
	clk := memclock.NewManualClock(start)
	r := NewRepoWithClock(clk)
	ins := insert(t, r, domain.Person{Membership: domain.MembershipAdult, LegalName: "A"})

	got, _ := r.GetByID(context.Background(), ins.ID)
	if !got.LastModified.Equal(start) {
		t.Fatalf("LastModified=%v, want %v", got.LastModified, start)
	}

	clk.Advance(time.Minute)
	var patch domain.PersonPatch
	patch.City = nullable.NewNullableWithValue("Oslo")
	err := r.RunInTx(context.Background(), func(ctx context.Context, tx memberrepo.Tx) error {
		_, err := tx.UpdatePerson(ctx, memberrepo.Update{ID: ins.ID, Patch: patch, Fields: []string{domain.FieldCity}})
		return err
	})
	if err != nil {
		t.Fatalf("UpdatePerson() err=%v", err)
	}
	got, _ = r.GetByID(context.Background(), ins.ID)
	if want := start.Add(time.Minute); !got.LastModified.Equal(want) {
		t.Fatalf("LastModified=%v, want %v", got.LastModified, want)
	}
}

func TestRepo_UpdateKeepsOwnMemberNumber(t *testing.T) {
	t.Parallel()

	r := NewRepo()
	ins := insert(t, r, domain.Person{Membership: domain.MembershipAdult, LegalName: "A"})

	var patch domain.PersonPatch
	patch.MemberNumber = nullable.NewNullableWithValue(*ins.MemberNumber)
	err := r.RunInTx(context.Background(), func(ctx context.Context, tx memberrepo.Tx) error {
		_, err := tx.UpdatePerson(ctx, memberrepo.Update{ID: ins.ID, Patch: patch, Fields: []string{domain.FieldMemberNumber}})
		return err
	})
	if err != nil {
		t.Fatalf("rewriting own number: err=%v", err)
	}
}
