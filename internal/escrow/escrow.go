package escrow

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/ksred/optionclear/internal/types"
	"github.com/ksred/optionclear/pkg/derive"
	"github.com/ksred/optionclear/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles escrow custody operations: sub-account allocation,
// deposits and withdrawals against the owner's external wallet.
type Service struct {
	db *Database
}

// NewService creates a new escrow service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// InitializeEscrow allocates the custodial sub-account for an owner and
// funds it to the reserve floor from the owner's wallet. Calling twice
// for the same owner fails.
func (s *Service) InitializeEscrow(owner string) (*types.Escrow, error) {
	logger := log.With().
		Str("owner", owner).
		Str("service", "escrow").
		Logger()

	var created *types.Escrow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := EscrowForOwner(tx, owner); err == nil {
			return types.ErrAccountExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		wallet, err := WalletForOwner(tx, owner)
		if err != nil {
			return err
		}
		if wallet.Balance < types.ReserveFloor {
			return types.ErrInsufficientBalance
		}

		esc := &types.Escrow{
			Address: derive.EscrowAddress(owner),
			Owner:   owner,
		}
		if err := tx.Create(esc).Error; err != nil {
			return err
		}
		if err := MoveWalletToEscrow(tx, wallet, esc, types.ReserveFloor, TransferReserve, ""); err != nil {
			return err
		}

		esc.Balance = types.ReserveFloor
		created = esc
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize escrow")
		return nil, err
	}

	logger.Info().
		Str("escrow_address", created.Address).
		Uint64("balance", created.Balance).
		Msg("escrow initialized")

	return created, nil
}

// Deposit transfers amount from the owner's wallet into escrow.
func (s *Service) Deposit(owner string, amount uint64) (*types.Escrow, error) {
	logger := log.With().
		Str("owner", owner).
		Uint64("amount", amount).
		Str("service", "escrow").
		Logger()

	if amount == 0 {
		return nil, types.ErrInvalidDepositAmount
	}

	var esc *types.Escrow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		esc, err = EscrowForOwner(tx, owner)
		if err != nil {
			return err
		}
		wallet, err := WalletForOwner(tx, owner)
		if err != nil {
			return err
		}
		if wallet.Balance < amount {
			return types.ErrInsufficientBalance
		}
		if err := MoveWalletToEscrow(tx, wallet, esc, amount, TransferDeposit, ""); err != nil {
			return err
		}
		esc.Balance += amount
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("deposit failed")
		return nil, err
	}

	logger.Info().Uint64("balance", esc.Balance).Msg("deposit completed")
	return esc, nil
}

// Withdraw transfers amount out of escrow back to the owner's wallet.
// The escrow must retain the reserve floor after the withdrawal.
func (s *Service) Withdraw(owner string, amount uint64) (*types.Escrow, error) {
	logger := log.With().
		Str("owner", owner).
		Uint64("amount", amount).
		Str("service", "escrow").
		Logger()

	var esc *types.Escrow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		esc, err = EscrowForOwner(tx, owner)
		if err != nil {
			return err
		}
		if esc.Balance < amount || esc.Balance-amount < types.ReserveFloor {
			return types.ErrInsufficientBalance
		}
		if err := MoveEscrowToWallet(tx, esc, owner, amount, TransferWithdraw, ""); err != nil {
			return err
		}
		esc.Balance -= amount
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("withdrawal failed")
		return nil, err
	}

	logger.Info().Uint64("balance", esc.Balance).Msg("withdrawal completed")
	return esc, nil
}

// FundWallet credits the owner's external wallet. This is the boundary
// through which funds enter the system; on the real ledger it is the
// owner's spendable balance.
func (s *Service) FundWallet(owner string, amount uint64) (*types.Wallet, error) {
	if amount == 0 {
		return nil, types.ErrInvalidDepositAmount
	}

	var wallet *types.Wallet
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, err = WalletForOwner(tx, owner)
		if err != nil {
			return err
		}
		if err := adjustWallet(tx, owner, "balance + ?", amount); err != nil {
			return err
		}
		if err := recordTransfer(tx, ExternalSource, owner, amount, TransferFunding, ""); err != nil {
			return err
		}
		wallet.Balance += amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("owner", owner).
		Uint64("amount", amount).
		Uint64("balance", wallet.Balance).
		Str("service", "escrow").
		Msg("wallet funded")

	return wallet, nil
}

// GetEscrow retrieves the escrow sub-account for an owner.
func (s *Service) GetEscrow(owner string) (*types.Escrow, error) {
	return s.db.GetEscrowByOwner(owner)
}

// GetWallet retrieves the external wallet for an owner.
func (s *Service) GetWallet(owner string) (*types.Wallet, error) {
	return s.db.GetWallet(owner)
}

// GetTransfers retrieves the journal rows touching an account.
func (s *Service) GetTransfers(account string) ([]types.Transfer, error) {
	return s.db.GetTransfersForAccount(account)
}

// GinHandlers contains HTTP handlers for escrow endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for escrow endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

// InitializeEscrowHandler handles POST requests to allocate the caller's escrow
func (h *GinHandlers) InitializeEscrowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		esc, err := h.service.InitializeEscrow(owner)
		response.Handle(c, esc, err)
	}
}

// DepositHandler handles POST requests to move wallet funds into escrow
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		esc, err := h.service.Deposit(owner, req.Amount)
		response.Handle(c, esc, err)
	}
}

// WithdrawHandler handles POST requests to move escrow funds back to the wallet
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		esc, err := h.service.Withdraw(owner, req.Amount)
		response.Handle(c, esc, err)
	}
}

// GetEscrowHandler handles GET requests for the caller's escrow state
func (h *GinHandlers) GetEscrowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		esc, err := h.service.GetEscrow(owner)
		response.Handle(c, esc, err)
	}
}

// GetWalletHandler handles GET requests for the caller's wallet state
func (h *GinHandlers) GetWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		wallet, err := h.service.GetWallet(owner)
		response.Handle(c, wallet, err)
	}
}

// GetTransfersHandler handles GET requests for the caller's escrow journal
func (h *GinHandlers) GetTransfersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		esc, err := h.service.GetEscrow(owner)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		transfers, err := h.service.GetTransfers(esc.Address)
		response.Handle(c, transfers, err)
	}
}

// FundWalletHandler handles internal POST requests to credit a wallet
func (h *GinHandlers) FundWalletHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Owner  string `json:"owner" binding:"required"`
			Amount uint64 `json:"amount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		wallet, err := h.service.FundWallet(req.Owner, req.Amount)
		response.Handle(c, wallet, err)
	}
}
