package contracts

// CreateContractRequest carries the terms of a negotiated bilateral
// agreement. The buyer is the authenticated submitter.
type CreateContractRequest struct {
	Seller               string `json:"seller" binding:"required"`
	UnderlyingAsset      string `json:"underlying_asset" binding:"required"`
	NumUnits             uint64 `json:"num_units" binding:"required"`
	StrikePrice          uint64 `json:"strike_price" binding:"required"` // minor currency units per unit
	ExpirationDate       int64  `json:"expiration_date" binding:"required"`
	OptionType           string `json:"option_type" binding:"required,oneof=CALL PUT"`
	Premium              uint64 `json:"premium"`
	MarginRequirementBps uint16 `json:"margin_requirement_bps"`
	IsTest               bool   `json:"is_test"`
}

// ExerciseRequest carries the caller-supplied prices at exercise time.
// Prices are trusted at submission; no valuation happens on-system.
type ExerciseRequest struct {
	UnderlyingPriceUsd uint64 `json:"underlying_price_usd" binding:"required"`
	CoinPriceUsd       uint64 `json:"coin_price_usd" binding:"required"` // native coin price, minor units
}
