package escrow

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

func fundedService(t *testing.T, owner string, amount uint64) *Service {
	t.Helper()
	svc := NewService(newTestDB(t))
	if _, err := svc.FundWallet(owner, amount); err != nil {
		t.Fatalf("failed to fund wallet: %v", err)
	}
	return svc
}

func TestInitializeEscrowRequiresWalletFunds(t *testing.T) {
	svc := NewService(newTestDB(t))

	if _, err := svc.InitializeEscrow("alice"); !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance without wallet funds, got %v", err)
	}
}

func TestInitializeEscrow(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor)

	esc, err := svc.InitializeEscrow("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if esc.Address != derive.EscrowAddress("alice") {
		t.Fatalf("escrow address not derived from owner: %s", esc.Address)
	}
	if esc.Balance != types.ReserveFloor {
		t.Fatalf("escrow not funded to reserve floor: %d", esc.Balance)
	}

	wallet, err := svc.GetWallet("alice")
	if err != nil {
		t.Fatal(err)
	}
	if wallet.Balance != 0 {
		t.Fatalf("wallet not debited: %d", wallet.Balance)
	}

	if _, err := svc.InitializeEscrow("alice"); !errors.Is(err, types.ErrAccountExists) {
		t.Fatalf("expected duplicate-account error, got %v", err)
	}
}

func TestDepositIncreasesBalance(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor+10_000)
	if _, err := svc.InitializeEscrow("alice"); err != nil {
		t.Fatal(err)
	}

	for _, amount := range []uint64{1, 100, 9_899} {
		before, err := svc.GetEscrow("alice")
		if err != nil {
			t.Fatal(err)
		}
		after, err := svc.Deposit("alice", amount)
		if err != nil {
			t.Fatalf("deposit %d: %v", amount, err)
		}
		if after.Balance != before.Balance+amount {
			t.Fatalf("deposit %d: balance %d, want %d", amount, after.Balance, before.Balance+amount)
		}
	}
}

func TestDepositZeroFails(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor)
	if _, err := svc.InitializeEscrow("alice"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Deposit("alice", 0); !errors.Is(err, types.ErrInvalidDepositAmount) {
		t.Fatalf("expected InvalidDepositAmount, got %v", err)
	}
}

func TestDepositExceedingWalletFails(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor+5)
	if _, err := svc.InitializeEscrow("alice"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Deposit("alice", 6); !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

func TestWithdrawProtectsReserveFloor(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor+1_000)
	if _, err := svc.InitializeEscrow("alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Deposit("alice", 1_000); err != nil {
		t.Fatal(err)
	}

	// Down to exactly the floor is allowed.
	esc, err := svc.Withdraw("alice", 1_000)
	if err != nil {
		t.Fatalf("withdrawal to floor failed: %v", err)
	}
	if esc.Balance != types.ReserveFloor {
		t.Fatalf("balance %d, want reserve floor %d", esc.Balance, types.ReserveFloor)
	}

	// One unit below the floor is not.
	if _, err := svc.Withdraw("alice", 1); !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}

	fetched, err := svc.GetEscrow("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Balance != types.ReserveFloor {
		t.Fatalf("failed withdrawal changed balance: %d", fetched.Balance)
	}
}

func TestWithdrawReturnsToWallet(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor+500)
	if _, err := svc.InitializeEscrow("alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Deposit("alice", 500); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Withdraw("alice", 300); err != nil {
		t.Fatal(err)
	}

	wallet, err := svc.GetWallet("alice")
	if err != nil {
		t.Fatal(err)
	}
	if wallet.Balance != 300 {
		t.Fatalf("wallet balance %d, want 300", wallet.Balance)
	}
}

func TestTransferJournal(t *testing.T) {
	svc := fundedService(t, "alice", types.ReserveFloor+1_000)
	esc, err := svc.InitializeEscrow("alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Deposit("alice", 700); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Withdraw("alice", 200); err != nil {
		t.Fatal(err)
	}

	transfers, err := svc.GetTransfers(esc.Address)
	if err != nil {
		t.Fatal(err)
	}

	kinds := make(map[string]int)
	for _, transfer := range transfers {
		kinds[transfer.Kind]++
		if transfer.TransferID == "" {
			t.Fatal("journal row missing transfer id")
		}
	}
	if kinds[TransferReserve] != 1 || kinds[TransferDeposit] != 1 || kinds[TransferWithdraw] != 1 {
		t.Fatalf("unexpected journal contents: %v", kinds)
	}
}
