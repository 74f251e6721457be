package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

type ctxKey struct{}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.db != db {
		t.Fatalf("expected base db to match provided connection")
	}
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)

	if withCtx == nil || withCtx.Statement == nil {
		t.Fatalf("expected statement created after WithContext")
	}
	if withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through, got %v", withCtx.Statement.Context)
	}

	withoutCtx := base.DB(nil)
	if withoutCtx != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseTx_PrefersTransaction(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	tx := db.Begin()
	defer tx.Rollback()

	ctx := context.WithValue(context.Background(), ctxKey{}, "tx")
	got := base.Tx(ctx, tx)
	if got.Statement.ConnPool != tx.Statement.ConnPool {
		t.Fatalf("expected transaction connection pool")
	}
	if got.Statement.Context != ctx {
		t.Fatalf("expected context on transaction")
	}

	if fallback := base.Tx(nil, nil); fallback != db {
		t.Fatalf("expected base connection without transaction")
	}
}
