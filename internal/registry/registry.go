package registry

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/ksred/optionclear/internal/types"
	"github.com/ksred/optionclear/pkg/derive"
	"github.com/ksred/optionclear/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service handles user registry operations
type Service struct {
	db *Database
}

// NewService creates a new registry service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// InitializeUser creates the registry record for an owner. Registration
// is not idempotent: a second call for the same owner fails.
func (s *Service) InitializeUser(owner string) (*types.UserRegistry, error) {
	logger := log.With().
		Str("owner", owner).
		Str("service", "registry").
		Logger()

	var created *types.UserRegistry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := ForOwner(tx, owner); err == nil {
			return types.ErrAccountExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		reg := &types.UserRegistry{
			Address:       derive.UserAddress(owner),
			Owner:         owner,
			ContractCount: 0,
		}
		if err := tx.Create(reg).Error; err != nil {
			return err
		}
		created = reg
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize user")
		return nil, err
	}

	logger.Info().
		Str("registry_address", created.Address).
		Msg("user registered")

	return created, nil
}

// GetRegistry retrieves the registry for an owner, entries included.
func (s *Service) GetRegistry(owner string) (*types.UserRegistry, error) {
	return s.db.GetByOwner(owner)
}

// GetRegistryByAddress retrieves a registry by its derived address.
func (s *Service) GetRegistryByAddress(address string) (*types.UserRegistry, error) {
	return s.db.GetByAddress(address)
}

// GinHandlers contains HTTP handlers for registry endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for registry endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// InitializeUserHandler handles POST requests to register the caller
func (h *GinHandlers) InitializeUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		reg, err := h.service.InitializeUser(owner)
		response.Handle(c, reg, err)
	}
}

// GetUserHandler handles GET requests for the caller's registry
func (h *GinHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("ownerAddress")

		reg, err := h.service.GetRegistry(owner)
		response.Handle(c, reg, err)
	}
}

// GetUserByAddressHandler handles GET requests for any registry by address
func (h *GinHandlers) GetUserByAddressHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")
		if address == "" {
			response.BadRequest(c, "registry address is required")
			return
		}

		reg, err := h.service.GetRegistryByAddress(address)
		response.Handle(c, reg, err)
	}
}
