// Package currency converts between asset prices quoted in minor currency
// units (cents) and amounts of the ledger's native base unit. All
// intermediate multiplications run through a widened 128-bit product so a
// large notional cannot silently wrap; division is integer floor division.
package currency

import (
	"math/bits"

	"github.com/ksred/optionclear/internal/types"
)

const marginBpsDenominator = 10_000

// CallProfitCents returns the in-the-money profit per unit for a call,
// max(0, underlying - strike), in minor currency units.
func CallProfitCents(underlyingPrice, strikePrice uint64) uint64 {
	if underlyingPrice > strikePrice {
		return underlyingPrice - strikePrice
	}
	return 0
}

// PutProfitCents returns the in-the-money profit per unit for a put,
// max(0, strike - underlying), in minor currency units.
func PutProfitCents(underlyingPrice, strikePrice uint64) uint64 {
	if strikePrice > underlyingPrice {
		return strikePrice - underlyingPrice
	}
	return 0
}

// ProfitCents returns the per-unit profit for the given option type.
func ProfitCents(optionType string, underlyingPrice, strikePrice uint64) uint64 {
	if optionType == types.OptionTypePut {
		return PutProfitCents(underlyingPrice, strikePrice)
	}
	return CallProfitCents(underlyingPrice, strikePrice)
}

// ProfitToNative converts a per-unit profit in minor currency units into
// native base units:
//
//	profitCents * numUnits * NativeUnitsPerCoin / rateCentsPerCoin
//
// rateCentsPerCoin is the externally supplied native-coin price in minor
// units. Fails with CalculationError on overflow or a zero rate.
func ProfitToNative(profitCents, numUnits, rateCentsPerCoin uint64) (uint64, error) {
	if rateCentsPerCoin == 0 {
		return 0, types.ErrCalculationError
	}

	totalCents, err := mulChecked(profitCents, numUnits)
	if err != nil {
		return 0, err
	}

	hi, lo := bits.Mul64(totalCents, types.NativeUnitsPerCoin)
	if hi >= rateCentsPerCoin {
		// Quotient would not fit in 64 bits.
		return 0, types.ErrCalculationError
	}
	quotient, _ := bits.Div64(hi, lo, rateCentsPerCoin)
	return quotient, nil
}

// Notional returns strikePrice * numUnits, the nominal value underlying
// a contract, in minor currency units.
func Notional(strikePrice, numUnits uint64) (uint64, error) {
	return mulChecked(strikePrice, numUnits)
}

// MarginAmount returns notional * marginBps / 10000, floor division.
func MarginAmount(strikePrice, numUnits uint64, marginBps uint16) (uint64, error) {
	notional, err := Notional(strikePrice, numUnits)
	if err != nil {
		return 0, err
	}

	hi, lo := bits.Mul64(notional, uint64(marginBps))
	if hi >= marginBpsDenominator {
		return 0, types.ErrCalculationError
	}
	quotient, _ := bits.Div64(hi, lo, marginBpsDenominator)
	return quotient, nil
}

func mulChecked(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, types.ErrCalculationError
	}
	return lo, nil
}
