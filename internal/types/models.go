package types

import (
	"time"

	"gorm.io/gorm"
)

// Option side of a contract.
const (
	OptionTypeCall = "CALL"
	OptionTypePut  = "PUT"
)

// Contract lifecycle states. Status only ever advances
// ACTIVE -> EXERCISED -> SETTLED.
const (
	StatusActive    = "ACTIVE"
	StatusExercised = "EXERCISED"
	StatusSettled   = "SETTLED"
)

// Roles a user can hold on a contract.
const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
)

const (
	// MaxContracts bounds the participation list of a single registry.
	MaxContracts = 100

	// MaxTickerLength bounds the underlying asset ticker.
	MaxTickerLength = 32

	// NativeUnitsPerCoin is the number of native base units in one coin.
	NativeUnitsPerCoin = 1_000_000_000

	// ReserveFloor is the minimum balance a sub-account must retain to
	// stay allocated on the host ledger.
	ReserveFloor = 890_880
)

// UserRegistry is the per-owner record tracking how many contracts the
// owner has originated and which contracts they participate in. The
// contract count is a monotonic nonce consumed by contract address
// derivation; it never decreases.
type UserRegistry struct {
	gorm.Model    `json:"-"`
	Address       string          `gorm:"uniqueIndex" json:"address"`
	Owner         string          `gorm:"uniqueIndex" json:"owner"`
	ContractCount uint64          `json:"contract_count"`
	Entries       []RegistryEntry `json:"contracts" gorm:"foreignKey:RegistryAddress;references:Address"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RegistryEntry is a lightweight reference to a contract the registry
// owner participates in. Rows are insertion ordered.
type RegistryEntry struct {
	gorm.Model      `json:"-"`
	RegistryAddress string `gorm:"index" json:"-"`
	ContractAddress string `json:"contract_address"`
	Role            string `json:"role"` // BUYER or SELLER
	Status          string `json:"status"`
}

// Escrow is the custodial sub-account holding an owner's native currency.
// Only the core moves its balance; the owner reaches it exclusively
// through deposit and withdraw.
type Escrow struct {
	gorm.Model `json:"-"`
	Address    string    `gorm:"uniqueIndex" json:"address"`
	Owner      string    `gorm:"uniqueIndex" json:"owner"`
	Balance    uint64    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Wallet is the owner's external balance source, outside the core's
// custody. Deposits draw from it, withdrawals and payouts land in it.
type Wallet struct {
	gorm.Model `json:"-"`
	Owner      string    `gorm:"uniqueIndex" json:"owner"`
	Balance    uint64    `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transfer is a journal row recording one physical balance movement.
// Audit trail only; balances live on Escrow and Wallet.
type Transfer struct {
	gorm.Model  `json:"-"`
	TransferID  string    `gorm:"uniqueIndex" json:"transfer_id"`
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Amount      uint64    `json:"amount"`
	Kind        string    `json:"kind"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OptionContract is a single bilateral European option agreement. The
// record is never destroyed; SETTLED is terminal and persists as an
// audit trail.
type OptionContract struct {
	gorm.Model           `json:"-"`
	Address              string    `gorm:"uniqueIndex" json:"address"`
	ContractID           uint64    `json:"contract_id"`
	CreationDate         int64     `json:"creation_date"`
	UnderlyingAsset      string    `json:"underlying_asset"`
	NumUnits             uint64    `json:"num_units"`
	StrikePrice          uint64    `json:"strike_price"` // minor currency units per unit
	ExpirationDate       int64     `json:"expiration_date"`
	OptionType           string    `json:"option_type"` // CALL or PUT
	Premium              uint64    `json:"premium"`
	Buyer                string    `gorm:"index" json:"buyer"`
	Seller               string    `gorm:"index" json:"seller"`
	BuyerEscrow          string    `json:"buyer_escrow"`
	SellerEscrow         string    `json:"seller_escrow"`
	BuyerPendingBalance  uint64    `json:"buyer_pending_balance"`
	SellerPendingBalance uint64    `json:"seller_pending_balance"`
	Status               string    `gorm:"index" json:"status"`
	MarginRequirementBps uint16    `json:"margin_requirement_bps"`
	MarginAmount         uint64    `json:"margin_amount"`
	IsTest               bool      `json:"is_test"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
