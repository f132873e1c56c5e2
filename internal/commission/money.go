// internal/commission/money.go
package commission

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const defaultMinorUnits int32 = 2

var (
	precisionMu sync.RWMutex
	precisions  = map[string]int32{
		"KRW": 0,
		"JPY": 0,
		"VND": 0,
		"BHD": 3,
		"KWD": 3,
	}
)

// SetCurrencyPrecision overrides the number of minor units for a currency.
func SetCurrencyPrecision(currency string, places int32) {
	precisionMu.Lock()
	defer precisionMu.Unlock()
	precisions[strings.ToUpper(currency)] = places
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency string) int32 {
	precisionMu.RLock()
	defer precisionMu.RUnlock()
	if p, ok := precisions[strings.ToUpper(currency)]; ok {
		return p
	}
	return defaultMinorUnits
}

// Round rounds half to even at the currency's minor unit.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(currency))
}

// Clamp bounds amount to [min, max]. Nil bounds are open.
func Clamp(amount decimal.Decimal, min, max *decimal.Decimal) decimal.Decimal {
	if min != nil && amount.LessThan(*min) {
		amount = *min
	}
	if max != nil && amount.GreaterThan(*max) {
		amount = *max
	}
	return amount
}
