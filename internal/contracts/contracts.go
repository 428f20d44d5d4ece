package contracts

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/optionclear/internal/escrow"
	"github.com/ksred/optionclear/internal/registry"
	"github.com/ksred/optionclear/internal/types"
	"github.com/ksred/optionclear/pkg/currency"
	"github.com/ksred/optionclear/pkg/derive"
	"github.com/ksred/optionclear/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Config carries lifecycle policy knobs.
type Config struct {
	// TransferPremium moves the premium from the buyer's escrow to the
	// seller's wallet at creation time, after verifying the buyer can
	// cover the premium and the seller can cover the margin amount.
	// With it off, creation computes the margin figure but moves nothing.
	TransferPremium bool
}

// DefaultConfig matches the behavior of the on-ledger program.
func DefaultConfig() Config {
	return Config{TransferPremium: true}
}

// Service drives the option contract state machine:
// ACTIVE -> EXERCISED -> SETTLED.
type Service struct {
	db  *Database
	cfg Config
}

// NewService creates a new contract lifecycle service with the default policy
func NewService(gormDB *gorm.DB) *Service {
	return NewServiceWithConfig(gormDB, DefaultConfig())
}

// NewServiceWithConfig creates a new contract lifecycle service
func NewServiceWithConfig(gormDB *gorm.DB, cfg Config) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		cfg: cfg,
	}
}

// CreateContract registers a new bilateral agreement between the
// authenticated buyer and a seller. The buyer's contract count is
// consumed as a one-time nonce for the contract address; both parties'
// registries record the contract atomically with its creation, so the
// same address can never be derived twice.
func (s *Service) CreateContract(buyer string, req CreateContractRequest) (*types.OptionContract, error) {
	logger := log.With().
		Str("buyer", buyer).
		Str("seller", req.Seller).
		Str("underlying_asset", req.UnderlyingAsset).
		Str("service", "contracts").
		Logger()

	logger.Info().Msg("starting contract creation")

	if buyer == req.Seller {
		return nil, types.ErrSameParty
	}
	if len(req.UnderlyingAsset) > types.MaxTickerLength {
		return nil, types.ErrAssetTickerTooLong
	}

	marginAmount, err := currency.MarginAmount(req.StrikePrice, req.NumUnits, req.MarginRequirementBps)
	if err != nil {
		logger.Error().Err(err).Msg("margin calculation failed")
		return nil, err
	}

	logger.Debug().
		Uint64("strike_price", req.StrikePrice).
		Uint64("num_units", req.NumUnits).
		Uint16("margin_bps", req.MarginRequirementBps).
		Uint64("margin_amount", marginAmount).
		Msg("calculated margin requirement")

	var contract *types.OptionContract
	err = s.db.Transaction(func(tx *gorm.DB) error {
		buyerReg, err := registry.ForOwner(tx, buyer)
		if err != nil {
			return err
		}
		sellerReg, err := registry.ForOwner(tx, req.Seller)
		if err != nil {
			return err
		}

		for _, reg := range []*types.UserRegistry{buyerReg, sellerReg} {
			count, err := registry.EntryCount(tx, reg.Address)
			if err != nil {
				return err
			}
			if count >= types.MaxContracts {
				return types.ErrMaxContractsReached
			}
		}

		address := derive.ContractAddress(buyer, req.Seller, buyerReg.ContractCount)
		now := time.Now()

		contract = &types.OptionContract{
			Address:              address,
			ContractID:           buyerReg.ContractCount,
			CreationDate:         now.Unix(),
			UnderlyingAsset:      req.UnderlyingAsset,
			NumUnits:             req.NumUnits,
			StrikePrice:          req.StrikePrice,
			ExpirationDate:       req.ExpirationDate,
			OptionType:           req.OptionType,
			Premium:              req.Premium,
			Buyer:                buyer,
			Seller:               req.Seller,
			BuyerEscrow:          derive.EscrowAddress(buyer),
			SellerEscrow:         derive.EscrowAddress(req.Seller),
			Status:               types.StatusActive,
			MarginRequirementBps: req.MarginRequirementBps,
			MarginAmount:         marginAmount,
			IsTest:               req.IsTest,
			CreatedAt:            now,
			UpdatedAt:            now,
		}

		if s.cfg.TransferPremium {
			buyerEsc, err := escrow.EscrowForOwner(tx, buyer)
			if err != nil {
				return err
			}
			sellerEsc, err := escrow.EscrowForOwner(tx, req.Seller)
			if err != nil {
				return err
			}
			if buyerEsc.Balance < req.Premium {
				return types.ErrInsufficientBalance
			}
			if sellerEsc.Balance < marginAmount {
				return types.ErrInsufficientBalance
			}
			if req.Premium > 0 {
				if err := escrow.MoveEscrowToWallet(tx, buyerEsc, req.Seller, req.Premium, escrow.TransferPremium, address); err != nil {
					return err
				}
			}
		}

		if err := tx.Create(contract).Error; err != nil {
			return err
		}
		if err := registry.IncrementContractCount(tx, buyerReg); err != nil {
			return err
		}
		if err := registry.RecordContract(tx, buyerReg, address, types.RoleBuyer, types.StatusActive); err != nil {
			return err
		}
		return registry.RecordContract(tx, sellerReg, address, types.RoleSeller, types.StatusActive)
	})
	if err != nil {
		logger.Error().Err(err).Msg("contract creation failed")
		return nil, err
	}

	logger.Info().
		Str("contract_address", contract.Address).
		Uint64("contract_id", contract.ContractID).
		Str("option_type", contract.OptionType).
		Uint64("premium", contract.Premium).
		Msg("contract created")

	return contract, nil
}

// Exercise settles the option's intrinsic value into pending balances.
// European style: only the buyer may exercise, and only at or after
// expiration unless the contract was created under test timing rules.
func (s *Service) Exercise(caller, address string, req ExerciseRequest) (*types.OptionContract, error) {
	logger := log.With().
		Str("caller", caller).
		Str("contract_address", address).
		Str("service", "contracts").
		Logger()

	logger.Info().Msg("starting exercise")

	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = contractForAddress(tx, address)
		if err != nil {
			return err
		}

		if contract.Status != types.StatusActive {
			return types.ErrContractNotActive
		}
		if contract.Buyer != caller {
			return types.ErrUnauthorizedExercise
		}
		if !contract.IsTest && time.Now().Unix() < contract.ExpirationDate {
			return types.ErrContractNotExpired
		}

		profitCents := currency.ProfitCents(contract.OptionType, req.UnderlyingPriceUsd, contract.StrikePrice)
		payout, err := currency.ProfitToNative(profitCents, contract.NumUnits, req.CoinPriceUsd)
		if err != nil {
			return err
		}

		logger.Debug().
			Uint64("underlying_price", req.UnderlyingPriceUsd).
			Uint64("strike_price", contract.StrikePrice).
			Uint64("profit_cents", profitCents).
			Uint64("payout_native", payout).
			Msg("calculated exercise payout")

		contract.BuyerPendingBalance = payout
		contract.SellerPendingBalance = 0
		contract.Status = types.StatusExercised
		if err := saveContract(tx, contract); err != nil {
			return err
		}

		return refreshRegistries(tx, contract)
	})
	if err != nil {
		logger.Error().Err(err).Msg("exercise failed")
		return nil, err
	}

	logger.Info().
		Uint64("buyer_pending_balance", contract.BuyerPendingBalance).
		Str("status", contract.Status).
		Msg("contract exercised")

	return contract, nil
}

// Settle moves pending balances between the parties' escrows and closes
// the contract. Any caller may trigger it once the contract is
// exercised; either counterparty can force the payout through.
func (s *Service) Settle(caller, address string) (*types.OptionContract, error) {
	logger := log.With().
		Str("caller", caller).
		Str("contract_address", address).
		Str("service", "contracts").
		Logger()

	logger.Info().Msg("starting settlement")

	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = contractForAddress(tx, address)
		if err != nil {
			return err
		}

		if contract.Status != types.StatusExercised {
			return types.ErrNotExercised
		}
		if contract.BuyerPendingBalance == 0 && contract.SellerPendingBalance == 0 {
			return types.ErrNoPendingBalance
		}

		buyerEsc, err := escrow.EscrowForAddress(tx, contract.BuyerEscrow)
		if err != nil {
			return err
		}
		sellerEsc, err := escrow.EscrowForAddress(tx, contract.SellerEscrow)
		if err != nil {
			return err
		}

		if contract.BuyerPendingBalance > 0 {
			if sellerEsc.Balance < contract.BuyerPendingBalance {
				return types.ErrInsufficientSellerEscrow
			}
			if err := escrow.MoveBetweenEscrows(tx, sellerEsc, buyerEsc, contract.BuyerPendingBalance, escrow.TransferSettlement, address); err != nil {
				return err
			}
		}

		// Reserved seller-side payout path; always zero in the current
		// contract variant.
		if contract.SellerPendingBalance > 0 {
			if buyerEsc.Balance < contract.SellerPendingBalance {
				return types.ErrInsufficientSellerEscrow
			}
			if err := escrow.MoveBetweenEscrows(tx, buyerEsc, sellerEsc, contract.SellerPendingBalance, escrow.TransferSettlement, address); err != nil {
				return err
			}
		}

		contract.BuyerPendingBalance = 0
		contract.SellerPendingBalance = 0
		contract.Status = types.StatusSettled
		if err := saveContract(tx, contract); err != nil {
			return err
		}

		return refreshRegistries(tx, contract)
	})
	if err != nil {
		logger.Error().Err(err).Msg("settlement failed")
		return nil, err
	}

	logger.Info().
		Str("status", contract.Status).
		Msg("contract settled")

	return contract, nil
}

// GetContract retrieves a contract by its derived address.
func (s *Service) GetContract(address string) (*types.OptionContract, error) {
	return s.db.GetContract(address)
}

// GetContractsForParty retrieves every contract an owner participates in.
func (s *Service) GetContractsForParty(owner string) ([]types.OptionContract, error) {
	return s.db.GetContractsForParty(owner)
}

func refreshRegistries(tx *gorm.DB, contract *types.OptionContract) error {
	buyerRegistry := derive.UserAddress(contract.Buyer)
	sellerRegistry := derive.UserAddress(contract.Seller)
	if err := registry.RefreshStatus(tx, buyerRegistry, contract.Address, contract.Status); err != nil {
		return err
	}
	return registry.RefreshStatus(tx, sellerRegistry, contract.Address, contract.Status)
}

// GinHandlers contains HTTP handlers for contract endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for contract endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateContractHandler handles POST requests to create contracts.
// The authenticated caller is the buyer.
func (h *GinHandlers) CreateContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer := c.GetString("ownerAddress")

		var req CreateContractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		contract, err := h.service.CreateContract(buyer, req)
		response.Handle(c, contract, err)
	}
}

// ExerciseContractHandler handles POST requests to exercise a contract.
// URL parameter: address
func (h *GinHandlers) ExerciseContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("ownerAddress")
		address := c.Param("address")

		var req ExerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		contract, err := h.service.Exercise(caller, address, req)
		response.Handle(c, contract, err)
	}
}

// SettleContractHandler handles POST requests to settle a contract.
// Deliberately open to any authenticated caller.
// URL parameter: address
func (h *GinHandlers) SettleContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("ownerAddress")
		address := c.Param("address")

		contract, err := h.service.Settle(caller, address)
		response.Handle(c, contract, err)
	}
}

// GetContractHandler handles GET requests for a contract by address
func (h *GinHandlers) GetContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		contract, err := h.service.GetContract(address)
		response.Handle(c, contract, err)
	}
}

// ListContractsHandler handles GET requests for the caller's contracts
func (h *GinHandlers) ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		contracts, err := h.service.GetContractsForParty(owner)
		response.Handle(c, contracts, err)
	}
}
