package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ksred/optionclear/internal/database"
	"github.com/ksred/optionclear/internal/types"
	"github.com/ksred/optionclear/pkg/derive"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := database.NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

func TestInitializeUser(t *testing.T) {
	svc := NewService(newTestDB(t))

	reg, err := svc.InitializeUser("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Address != derive.UserAddress("alice") {
		t.Fatalf("registry address not derived from owner: %s", reg.Address)
	}
	if reg.ContractCount != 0 {
		t.Fatalf("new registry has nonzero contract count: %d", reg.ContractCount)
	}
}

func TestInitializeUserTwiceFails(t *testing.T) {
	svc := NewService(newTestDB(t))

	if _, err := svc.InitializeUser("alice"); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := svc.InitializeUser("alice"); !errors.Is(err, types.ErrAccountExists) {
		t.Fatalf("expected duplicate-account error, got %v", err)
	}
}

func TestRecordContractBound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	reg, err := svc.InitializeUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < types.MaxContracts; i++ {
		addr := fmt.Sprintf("contract-%d", i)
		if err := RecordContract(db, reg, addr, types.RoleBuyer, types.StatusActive); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}

	err = RecordContract(db, reg, "one-too-many", types.RoleBuyer, types.StatusActive)
	if !errors.Is(err, types.ErrMaxContractsReached) {
		t.Fatalf("expected MaxContractsReached, got %v", err)
	}

	count, err := EntryCount(db, reg.Address)
	if err != nil {
		t.Fatal(err)
	}
	if count != types.MaxContracts {
		t.Fatalf("rejected entry was persisted: count %d", count)
	}
}

func TestRefreshStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	reg, err := svc.InitializeUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := RecordContract(db, reg, "contract-0", types.RoleSeller, types.StatusActive); err != nil {
		t.Fatal(err)
	}

	if err := RefreshStatus(db, reg.Address, "contract-0", types.StatusExercised); err != nil {
		t.Fatal(err)
	}

	fetched, err := svc.GetRegistry("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(fetched.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fetched.Entries))
	}
	if fetched.Entries[0].Status != types.StatusExercised {
		t.Fatalf("status snapshot not refreshed: %s", fetched.Entries[0].Status)
	}
	if fetched.Entries[0].Role != types.RoleSeller {
		t.Fatalf("role changed by refresh: %s", fetched.Entries[0].Role)
	}
}

func TestIncrementContractCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	reg, err := svc.InitializeUser("alice")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := IncrementContractCount(db, reg); err != nil {
			t.Fatal(err)
		}
	}

	fetched, err := svc.GetRegistry("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fetched.ContractCount != 3 {
		t.Fatalf("expected contract count 3, got %d", fetched.ContractCount)
	}
}
