// Package pnl computes realized profit and loss for closed positions.
package pnl

import (
	"math"

	"copytrade-backend/internal/database"
)

// Calculate returns the signed PnL for a position closed at exitPrice.
// Long positions gain when price rises, short positions when it falls:
//
//	LONG:  (exit - entry) * quantity
//	SHORT: (entry - exit) * quantity
//
// Pure function; the only failure mode is invalid input.
func Calculate(direction database.TradeDirection, entryPrice, exitPrice, quantity float64) (float64, error) {
	if !isFinitePositive(entryPrice) || !isFinitePositive(exitPrice) {
		return 0, database.ErrInvalidPrice
	}
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return 0, database.ErrInvalidQuantity
	}

	switch direction {
	case database.DirectionShort:
		return (entryPrice - exitPrice) * quantity, nil
	default:
		return (exitPrice - entryPrice) * quantity, nil
	}
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
