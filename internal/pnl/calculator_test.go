package pnl

import (
	"errors"
	"math"
	"testing"

	"copytrade-backend/internal/database"
)

// floatEquals compares two floats with tolerance
func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ============================================================================
// TEST: Long and short PnL
// ============================================================================

func TestCalculate_Directions(t *testing.T) {
	testCases := []struct {
		name       string
		direction  database.TradeDirection
		entryPrice float64
		exitPrice  float64
		quantity   float64
		expected   float64
	}{
		{
			name:       "long profit",
			direction:  database.DirectionLong,
			entryPrice: 100.0,
			exitPrice:  110.0,
			quantity:   10.0,
			expected:   100.0,
		},
		{
			name:       "long loss",
			direction:  database.DirectionLong,
			entryPrice: 100.0,
			exitPrice:  90.0,
			quantity:   10.0,
			expected:   -100.0,
		},
		{
			name:       "short profit",
			direction:  database.DirectionShort,
			entryPrice: 100.0,
			exitPrice:  90.0,
			quantity:   10.0,
			expected:   100.0,
		},
		{
			name:       "short loss",
			direction:  database.DirectionShort,
			entryPrice: 100.0,
			exitPrice:  110.0,
			quantity:   10.0,
			expected:   -100.0,
		},
		{
			name:       "break even",
			direction:  database.DirectionLong,
			entryPrice: 42500.0,
			exitPrice:  42500.0,
			quantity:   0.5,
			expected:   0.0,
		},
		{
			name:       "fractional quantity",
			direction:  database.DirectionLong,
			entryPrice: 2250.0,
			exitPrice:  2380.0,
			quantity:   5.0,
			expected:   650.0,
		},
		{
			name:       "scaled follower quantity",
			direction:  database.DirectionLong,
			entryPrice: 100.0,
			exitPrice:  110.0,
			quantity:   5.0, // 10 x 0.5 ratio
			expected:   50.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Calculate(tc.direction, tc.entryPrice, tc.exitPrice, tc.quantity)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !floatEquals(got, tc.expected, 1e-9) {
				t.Errorf("Expected pnl %.4f, got %.4f", tc.expected, got)
			}
		})
	}
}

// ============================================================================
// TEST: Invalid inputs
// ============================================================================

func TestCalculate_InvalidInputs(t *testing.T) {
	testCases := []struct {
		name       string
		entryPrice float64
		exitPrice  float64
		quantity   float64
		wantErr    error
	}{
		{name: "zero entry price", entryPrice: 0, exitPrice: 100, quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "negative exit price", entryPrice: 100, exitPrice: -1, quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "NaN entry price", entryPrice: math.NaN(), exitPrice: 100, quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "infinite exit price", entryPrice: 100, exitPrice: math.Inf(1), quantity: 1, wantErr: database.ErrInvalidPrice},
		{name: "NaN quantity", entryPrice: 100, exitPrice: 110, quantity: math.NaN(), wantErr: database.ErrInvalidQuantity},
		{name: "infinite quantity", entryPrice: 100, exitPrice: 110, quantity: math.Inf(-1), wantErr: database.ErrInvalidQuantity},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(database.DirectionLong, tc.entryPrice, tc.exitPrice, tc.quantity)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
