package escrow

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/optionclear/internal/types"
	"gorm.io/gorm"
)

// Transfer journal kinds.
const (
	TransferDeposit    = "DEPOSIT"
	TransferWithdraw   = "WITHDRAW"
	TransferReserve    = "RESERVE"
	TransferPremium    = "PREMIUM"
	TransferSettlement = "SETTLEMENT"
	TransferFunding    = "FUNDING"
)

// ExternalSource is the journal account name for funds entering the
// system from outside the ledger.
const ExternalSource = "external"

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Transaction runs fn atomically against the store.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func (d *Database) GetEscrowByOwner(owner string) (*types.Escrow, error) {
	return EscrowForOwner(d.db, owner)
}

func (d *Database) GetWallet(owner string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("owner = ?", owner).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (d *Database) GetTransfersForAccount(account string) ([]types.Transfer, error) {
	var transfers []types.Transfer
	if err := d.db.Where("from_account = ? OR to_account = ?", account, account).
		Order("created_at DESC").Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}

// The helpers below run inside a caller-owned transaction so that
// contract operations can move escrow funds atomically with their own
// state changes.

// EscrowForOwner fetches an owner's escrow inside tx.
func EscrowForOwner(tx *gorm.DB, owner string) (*types.Escrow, error) {
	var esc types.Escrow
	if err := tx.Where("owner = ?", owner).First(&esc).Error; err != nil {
		return nil, err
	}
	return &esc, nil
}

// EscrowForAddress fetches an escrow by its derived address inside tx.
func EscrowForAddress(tx *gorm.DB, address string) (*types.Escrow, error) {
	var esc types.Escrow
	if err := tx.Where("address = ?", address).First(&esc).Error; err != nil {
		return nil, err
	}
	return &esc, nil
}

// WalletForOwner fetches an owner's wallet inside tx, creating an empty
// one if the owner has never been funded.
func WalletForOwner(tx *gorm.DB, owner string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := tx.Where(types.Wallet{Owner: owner}).FirstOrCreate(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// MoveBetweenEscrows debits one escrow and credits another, journaling
// the movement. The caller is expected to have validated the balance
// against its own named condition first.
func MoveBetweenEscrows(tx *gorm.DB, from, to *types.Escrow, amount uint64, kind, reference string) error {
	if from.Balance < amount {
		return types.ErrInsufficientBalance
	}
	if err := adjustEscrow(tx, from.Address, "balance - ?", amount); err != nil {
		return err
	}
	if err := adjustEscrow(tx, to.Address, "balance + ?", amount); err != nil {
		return err
	}
	return recordTransfer(tx, from.Address, to.Address, amount, kind, reference)
}

// MoveEscrowToWallet pays funds out of an escrow into an owner's wallet.
func MoveEscrowToWallet(tx *gorm.DB, from *types.Escrow, owner string, amount uint64, kind, reference string) error {
	if from.Balance < amount {
		return types.ErrInsufficientBalance
	}
	if _, err := WalletForOwner(tx, owner); err != nil {
		return err
	}
	if err := adjustEscrow(tx, from.Address, "balance - ?", amount); err != nil {
		return err
	}
	if err := adjustWallet(tx, owner, "balance + ?", amount); err != nil {
		return err
	}
	return recordTransfer(tx, from.Address, owner, amount, kind, reference)
}

// MoveWalletToEscrow funds an escrow from the owner's wallet.
func MoveWalletToEscrow(tx *gorm.DB, wallet *types.Wallet, to *types.Escrow, amount uint64, kind, reference string) error {
	if wallet.Balance < amount {
		return types.ErrInsufficientBalance
	}
	if err := adjustWallet(tx, wallet.Owner, "balance - ?", amount); err != nil {
		return err
	}
	if err := adjustEscrow(tx, to.Address, "balance + ?", amount); err != nil {
		return err
	}
	return recordTransfer(tx, wallet.Owner, to.Address, amount, kind, reference)
}

func adjustEscrow(tx *gorm.DB, address, expr string, amount uint64) error {
	result := tx.Model(&types.Escrow{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr(expr, amount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("escrow not found")
	}
	return nil
}

func adjustWallet(tx *gorm.DB, owner, expr string, amount uint64) error {
	result := tx.Model(&types.Wallet{}).
		Where("owner = ?", owner).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr(expr, amount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("wallet not found")
	}
	return nil
}

func recordTransfer(tx *gorm.DB, from, to string, amount uint64, kind, reference string) error {
	transfer := &types.Transfer{
		TransferID:  "TXN_" + uuid.New().String(),
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Kind:        kind,
		Reference:   reference,
		CreatedAt:   time.Now(),
	}
	return tx.Create(transfer).Error
}
