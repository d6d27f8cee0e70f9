//go:build integration

package idempotency

import (
	"testing"
	"time"

	"github.com/convention-registry/member-api/internal/adapters/contracttest"
	"github.com/convention-registry/member-api/internal/adapters/postgres/testutil"
	idempotencyport "github.com/convention-registry/member-api/internal/ports/out/idempotency"
)

func TestContract_PostgresIdempotencyStore(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(pool, time.Hour), nil
	})
}
