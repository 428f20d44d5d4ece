package types

import "errors"

// Named failure conditions. Every precondition check maps a failure to
// exactly one of these, before any mutation; callers surface the
// condition verbatim.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance in escrow")
	ErrContractNotExpired       = errors.New("contract has not expired yet")
	ErrContractNotActive        = errors.New("contract is not in active state")
	ErrUnauthorizedExercise     = errors.New("only the buyer can exercise the contract")
	ErrNotExercised             = errors.New("contract must be exercised before settlement")
	ErrNoPendingBalance         = errors.New("no pending balance to settle")
	ErrInsufficientSellerEscrow = errors.New("seller escrow has insufficient funds for settlement")
	ErrCalculationError         = errors.New("calculation error: overflow or division by zero")
	ErrMaxContractsReached      = errors.New("maximum number of contracts reached")
	ErrAssetTickerTooLong       = errors.New("asset ticker exceeds maximum length")
	ErrInvalidDepositAmount     = errors.New("deposit amount must be greater than zero")
)

// Conditions outside the core rule set, raised at the submission boundary.
var (
	ErrAccountExists = errors.New("account already initialized for owner")
	ErrSameParty     = errors.New("buyer and seller must be distinct")
)
