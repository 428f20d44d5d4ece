package contracts

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ksred/optionclear/internal/database"
	"github.com/ksred/optionclear/internal/escrow"
	"github.com/ksred/optionclear/internal/registry"
	"github.com/ksred/optionclear/internal/types"
	"github.com/ksred/optionclear/pkg/derive"
	"gorm.io/gorm"
)

type testEnv struct {
	contracts *Service
	escrow    *escrow.Service
	registry  *registry.Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := database.NewDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return db
}

// newTestEnv registers alice and bob with funded escrows: 100 coins in
// each wallet, 30 coins deposited on top of the reserve floor.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		contracts: NewService(db),
		escrow:    escrow.NewService(db),
		registry:  registry.NewService(db),
	}
	for _, owner := range []string{"alice", "bob"} {
		if _, err := env.registry.InitializeUser(owner); err != nil {
			t.Fatalf("failed to register %s: %v", owner, err)
		}
		if _, err := env.escrow.FundWallet(owner, 100*types.NativeUnitsPerCoin); err != nil {
			t.Fatalf("failed to fund %s: %v", owner, err)
		}
		if _, err := env.escrow.InitializeEscrow(owner); err != nil {
			t.Fatalf("failed to initialize escrow for %s: %v", owner, err)
		}
		if _, err := env.escrow.Deposit(owner, 30*types.NativeUnitsPerCoin); err != nil {
			t.Fatalf("failed to deposit for %s: %v", owner, err)
		}
	}
	return env
}

func callRequest() CreateContractRequest {
	return CreateContractRequest{
		Seller:               "bob",
		UnderlyingAsset:      "ACME",
		NumUnits:             100,
		StrikePrice:          15_000,
		ExpirationDate:       time.Now().Add(24 * time.Hour).Unix(),
		OptionType:           types.OptionTypeCall,
		Premium:              types.NativeUnitsPerCoin,
		MarginRequirementBps: 500,
		IsTest:               true,
	}
}

func escrowBalance(t *testing.T, env *testEnv, owner string) uint64 {
	t.Helper()
	esc, err := env.escrow.GetEscrow(owner)
	if err != nil {
		t.Fatalf("failed to read escrow for %s: %v", owner, err)
	}
	return esc.Balance
}

func TestCallLifecycle(t *testing.T) {
	env := newTestEnv(t)

	buyerBefore := escrowBalance(t, env, "alice")
	contract, err := env.contracts.CreateContract("alice", callRequest())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if contract.Status != types.StatusActive {
		t.Fatalf("status %s, want ACTIVE", contract.Status)
	}
	if contract.ContractID != 0 {
		t.Fatalf("first contract id %d, want 0", contract.ContractID)
	}
	if contract.Address != derive.ContractAddress("alice", "bob", 0) {
		t.Fatalf("address not derived from parties and nonce: %s", contract.Address)
	}
	if contract.MarginAmount != 75_000 {
		t.Fatalf("margin amount %d, want 75000", contract.MarginAmount)
	}

	// Premium moved out of the buyer's escrow into the seller's wallet.
	if got := escrowBalance(t, env, "alice"); got != buyerBefore-contract.Premium {
		t.Fatalf("buyer escrow %d after creation, want %d", got, buyerBefore-contract.Premium)
	}
	sellerWallet, err := env.escrow.GetWallet("bob")
	if err != nil {
		t.Fatal(err)
	}
	wantWallet := 70*types.NativeUnitsPerCoin - types.ReserveFloor + contract.Premium
	if sellerWallet.Balance != wantWallet {
		t.Fatalf("seller wallet %d, want %d", sellerWallet.Balance, wantWallet)
	}

	// 17000 - 15000 = 2000 cents profit, 100 units, 10000 cents per coin:
	// 20 coins of payout.
	exercised, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 17_000,
		CoinPriceUsd:       10_000,
	})
	if err != nil {
		t.Fatalf("exercise failed: %v", err)
	}
	if exercised.Status != types.StatusExercised {
		t.Fatalf("status %s, want EXERCISED", exercised.Status)
	}
	wantPayout := uint64(20 * types.NativeUnitsPerCoin)
	if exercised.BuyerPendingBalance != wantPayout {
		t.Fatalf("buyer pending %d, want %d", exercised.BuyerPendingBalance, wantPayout)
	}
	if exercised.SellerPendingBalance != 0 {
		t.Fatalf("seller pending %d, want 0", exercised.SellerPendingBalance)
	}

	buyerBefore = escrowBalance(t, env, "alice")
	sellerBefore := escrowBalance(t, env, "bob")

	// Settlement is permissionless: the seller pushes it through here.
	settled, err := env.contracts.Settle("bob", contract.Address)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if settled.Status != types.StatusSettled {
		t.Fatalf("status %s, want SETTLED", settled.Status)
	}
	if settled.BuyerPendingBalance != 0 || settled.SellerPendingBalance != 0 {
		t.Fatal("pending balances not cleared")
	}
	if got := escrowBalance(t, env, "alice"); got != buyerBefore+wantPayout {
		t.Fatalf("buyer escrow %d, want %d", got, buyerBefore+wantPayout)
	}
	if got := escrowBalance(t, env, "bob"); got != sellerBefore-wantPayout {
		t.Fatalf("seller escrow %d, want %d", got, sellerBefore-wantPayout)
	}

	// Both registries track the terminal status.
	for _, owner := range []string{"alice", "bob"} {
		reg, err := env.registry.GetRegistry(owner)
		if err != nil {
			t.Fatal(err)
		}
		if len(reg.Entries) != 1 {
			t.Fatalf("%s registry has %d entries, want 1", owner, len(reg.Entries))
		}
		if reg.Entries[0].Status != types.StatusSettled {
			t.Fatalf("%s registry entry status %s, want SETTLED", owner, reg.Entries[0].Status)
		}
	}
}

func TestOutOfTheMoneyCall(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.StrikePrice = 20_000
	req.NumUnits = 50
	contract, err := env.contracts.CreateContract("alice", req)
	if err != nil {
		t.Fatal(err)
	}

	exercised, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 18_000,
		CoinPriceUsd:       10_000,
	})
	if err != nil {
		t.Fatalf("exercise failed: %v", err)
	}
	if exercised.Status != types.StatusExercised {
		t.Fatalf("status %s, want EXERCISED", exercised.Status)
	}
	if exercised.BuyerPendingBalance != 0 {
		t.Fatalf("worthless exercise produced payout %d", exercised.BuyerPendingBalance)
	}

	if _, err := env.contracts.Settle("alice", contract.Address); !errors.Is(err, types.ErrNoPendingBalance) {
		t.Fatalf("expected NoPendingBalance, got %v", err)
	}
}

func TestPutPayout(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.OptionType = types.OptionTypePut
	req.StrikePrice = 25_000
	req.NumUnits = 75
	contract, err := env.contracts.CreateContract("alice", req)
	if err != nil {
		t.Fatal(err)
	}

	// 25000 - 22000 = 3000 cents profit, 75 units: 22.5 coins.
	exercised, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 22_000,
		CoinPriceUsd:       10_000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if exercised.BuyerPendingBalance != 22_500_000_000 {
		t.Fatalf("put payout %d, want 22500000000", exercised.BuyerPendingBalance)
	}
}

func TestExerciseOnlyByBuyer(t *testing.T) {
	env := newTestEnv(t)

	contract, err := env.contracts.CreateContract("alice", callRequest())
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.contracts.Exercise("bob", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 17_000,
		CoinPriceUsd:       10_000,
	})
	if !errors.Is(err, types.ErrUnauthorizedExercise) {
		t.Fatalf("expected UnauthorizedExercise, got %v", err)
	}

	fetched, err := env.contracts.GetContract(contract.Address)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != types.StatusActive || fetched.BuyerPendingBalance != 0 {
		t.Fatal("failed exercise mutated contract state")
	}
}

func TestExerciseBeforeExpiration(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.IsTest = false
	contract, err := env.contracts.CreateContract("alice", req)
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 17_000,
		CoinPriceUsd:       10_000,
	})
	if !errors.Is(err, types.ErrContractNotExpired) {
		t.Fatalf("expected ContractNotExpired, got %v", err)
	}
}

func TestSettleRequiresExercise(t *testing.T) {
	env := newTestEnv(t)

	contract, err := env.contracts.CreateContract("alice", callRequest())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.contracts.Settle("alice", contract.Address); !errors.Is(err, types.ErrNotExercised) {
		t.Fatalf("expected NotExercised while active, got %v", err)
	}

	if _, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 17_000,
		CoinPriceUsd:       10_000,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.contracts.Settle("bob", contract.Address); err != nil {
		t.Fatal(err)
	}

	// Settlement is one-shot.
	if _, err := env.contracts.Settle("bob", contract.Address); !errors.Is(err, types.ErrNotExercised) {
		t.Fatalf("expected NotExercised after settlement, got %v", err)
	}
}

func TestContractNonceAdvances(t *testing.T) {
	env := newTestEnv(t)

	seen := make(map[string]bool)
	for i := uint64(0); i < 3; i++ {
		req := callRequest()
		req.Premium = 0
		contract, err := env.contracts.CreateContract("alice", req)
		if err != nil {
			t.Fatalf("contract %d: %v", i, err)
		}
		if contract.ContractID != i {
			t.Fatalf("contract id %d, want %d", contract.ContractID, i)
		}
		if seen[contract.Address] {
			t.Fatalf("duplicate contract address %s", contract.Address)
		}
		seen[contract.Address] = true
	}

	reg, err := env.registry.GetRegistry("alice")
	if err != nil {
		t.Fatal(err)
	}
	if reg.ContractCount != 3 {
		t.Fatalf("contract count %d, want 3", reg.ContractCount)
	}
}

func TestCreateContractValidation(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.Seller = "alice"
	if _, err := env.contracts.CreateContract("alice", req); !errors.Is(err, types.ErrSameParty) {
		t.Fatalf("expected SameParty, got %v", err)
	}

	req = callRequest()
	req.UnderlyingAsset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456"
	if _, err := env.contracts.CreateContract("alice", req); !errors.Is(err, types.ErrAssetTickerTooLong) {
		t.Fatalf("expected AssetTickerTooLong, got %v", err)
	}

	req = callRequest()
	req.Seller = "nobody"
	if _, err := env.contracts.CreateContract("alice", req); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found for unregistered seller, got %v", err)
	}

	req = callRequest()
	req.Premium = 31 * types.NativeUnitsPerCoin
	if _, err := env.contracts.CreateContract("alice", req); !errors.Is(err, types.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance for unaffordable premium, got %v", err)
	}
}

func TestSettleInsufficientSellerEscrow(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.NumUnits = 10_000
	req.Premium = 0
	contract, err := env.contracts.CreateContract("alice", req)
	if err != nil {
		t.Fatal(err)
	}

	// 15000 cents profit across 10000 units: 15000 coins of payout, far
	// beyond the seller's 30-coin escrow.
	if _, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 30_000,
		CoinPriceUsd:       10_000,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.contracts.Settle("alice", contract.Address); !errors.Is(err, types.ErrInsufficientSellerEscrow) {
		t.Fatalf("expected InsufficientSellerEscrow, got %v", err)
	}

	// The contract stays exercised so settlement can retry after the
	// seller tops up.
	fetched, err := env.contracts.GetContract(contract.Address)
	if err != nil {
		t.Fatal(err)
	}
	if fetched.Status != types.StatusExercised {
		t.Fatalf("status %s, want EXERCISED after failed settlement", fetched.Status)
	}
	if fetched.BuyerPendingBalance == 0 {
		t.Fatal("pending balance cleared by failed settlement")
	}
}

func TestCreateContractWithoutPremiumTransfer(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceWithConfig(db, Config{TransferPremium: false})
	reg := registry.NewService(db)

	// No escrows exist; with the premium leg disabled, creation only
	// needs both registries.
	for _, owner := range []string{"alice", "bob"} {
		if _, err := reg.InitializeUser(owner); err != nil {
			t.Fatal(err)
		}
	}

	contract, err := svc.CreateContract("alice", callRequest())
	if err != nil {
		t.Fatalf("create without premium transfer failed: %v", err)
	}
	if contract.Status != types.StatusActive {
		t.Fatalf("status %s, want ACTIVE", contract.Status)
	}
}

func TestGetContractsForParty(t *testing.T) {
	env := newTestEnv(t)

	req := callRequest()
	req.Premium = 0
	if _, err := env.contracts.CreateContract("alice", req); err != nil {
		t.Fatal(err)
	}
	if _, err := env.contracts.CreateContract("bob", CreateContractRequest{
		Seller:               "alice",
		UnderlyingAsset:      "WIDG",
		NumUnits:             10,
		StrikePrice:          5_000,
		ExpirationDate:       time.Now().Add(24 * time.Hour).Unix(),
		OptionType:           types.OptionTypePut,
		MarginRequirementBps: 500,
		IsTest:               true,
	}); err != nil {
		t.Fatal(err)
	}

	contracts, err := env.contracts.GetContractsForParty("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(contracts) != 2 {
		t.Fatalf("alice participates in %d contracts, want 2", len(contracts))
	}
}

func TestSettleableContracts(t *testing.T) {
	env := newTestEnv(t)

	contract, err := env.contracts.CreateContract("alice", callRequest())
	if err != nil {
		t.Fatal(err)
	}

	settleable, err := env.contracts.db.GetSettleableContracts()
	if err != nil {
		t.Fatal(err)
	}
	if len(settleable) != 0 {
		t.Fatalf("active contract reported settleable")
	}

	if _, err := env.contracts.Exercise("alice", contract.Address, ExerciseRequest{
		UnderlyingPriceUsd: 17_000,
		CoinPriceUsd:       10_000,
	}); err != nil {
		t.Fatal(err)
	}

	settleable, err = env.contracts.db.GetSettleableContracts()
	if err != nil {
		t.Fatal(err)
	}
	if len(settleable) != 1 || settleable[0].Address != contract.Address {
		t.Fatalf("exercised contract not reported settleable: %v", settleable)
	}

	if _, err := env.contracts.Settle(ProcessorCaller, contract.Address); err != nil {
		t.Fatal(err)
	}

	settleable, err = env.contracts.db.GetSettleableContracts()
	if err != nil {
		t.Fatal(err)
	}
	if len(settleable) != 0 {
		t.Fatal("settled contract still reported settleable")
	}
}
