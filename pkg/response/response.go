package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/optionclear/internal/types"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// conditions maps each named failure condition to a stable error code and
// HTTP status. Callers receive the condition verbatim; nothing is
// re-mapped to a different kind.
var conditions = []struct {
	err    error
	code   string
	status int
}{
	{types.ErrInsufficientBalance, "INSUFFICIENT_BALANCE", http.StatusUnprocessableEntity},
	{types.ErrContractNotExpired, "CONTRACT_NOT_EXPIRED", http.StatusUnprocessableEntity},
	{types.ErrContractNotActive, "CONTRACT_NOT_ACTIVE", http.StatusUnprocessableEntity},
	{types.ErrUnauthorizedExercise, "UNAUTHORIZED_EXERCISE", http.StatusForbidden},
	{types.ErrNotExercised, "NOT_EXERCISED", http.StatusUnprocessableEntity},
	{types.ErrNoPendingBalance, "NO_PENDING_BALANCE", http.StatusUnprocessableEntity},
	{types.ErrInsufficientSellerEscrow, "INSUFFICIENT_SELLER_ESCROW", http.StatusUnprocessableEntity},
	{types.ErrCalculationError, "CALCULATION_ERROR", http.StatusUnprocessableEntity},
	{types.ErrMaxContractsReached, "MAX_CONTRACTS_REACHED", http.StatusUnprocessableEntity},
	{types.ErrAssetTickerTooLong, "ASSET_TICKER_TOO_LONG", http.StatusBadRequest},
	{types.ErrInvalidDepositAmount, "INVALID_DEPOSIT_AMOUNT", http.StatusBadRequest},
	{types.ErrAccountExists, ErrCodeDuplicateResource, http.StatusConflict},
	{types.ErrSameParty, ErrCodeBadRequest, http.StatusBadRequest},
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	for _, cond := range conditions {
		if errors.Is(err, cond.err) {
			c.JSON(cond.status, Response{
				Success: false,
				Error: &Error{
					Code:    cond.code,
					Message: cond.err.Error(),
				},
			})
			return
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeForbidden,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}
