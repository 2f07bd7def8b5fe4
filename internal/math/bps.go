package math

import (
	"errors"
	"math/big"
	"sync"
)

// ScaleBps is the fixed-point scale for odds, multipliers, and fee rates:
// 10_000 basis points = 1.00 (100%).
const ScaleBps uint64 = 10_000

// ErrOverflow is returned when a checked operation would wrap or a widened
// result does not fit back into 64 bits. Callers must treat it as a terminal
// validation failure, never as a retryable condition.
var ErrOverflow = errors.New("arithmetic overflow")

// Pooled big.Int for intermediate widening. All multiply-then-divide paths go
// through 128+ bit intermediates so no product can wrap before the divide.
var widePool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return widePool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0)
	widePool.Put(v)
}

// CheckedAdd returns a + b, or ErrOverflow if the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b, or ErrOverflow on underflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// SaturatingSub returns a - b, clamped at zero instead of failing.
// Settlement uses this for the exposure counter so a claim can never be
// blocked by bookkeeping drift.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MulDivFloor computes a * b / div with a widened intermediate product.
// Division truncates toward zero — the floor systematically rounds in the
// ledger's favor and must not be replaced with round-to-nearest.
func MulDivFloor(a, b, div uint64) (uint64, error) {
	if div == 0 {
		return 0, ErrOverflow
	}

	prod := getWide()
	defer putWide(prod)

	prod.SetUint64(a)
	tmp := getWide()
	defer putWide(tmp)
	tmp.SetUint64(b)
	prod.Mul(prod, tmp)

	tmp.SetUint64(div)
	prod.Quo(prod, tmp)

	if !prod.IsUint64() {
		return 0, ErrOverflow
	}
	return prod.Uint64(), nil
}

// PayoutExpected computes the gross payout locked in at bet placement:
//
//	floor(amount * oddsBps * multiplierBps / ScaleBps²)
//
// The two scaled factors are applied in one widened product so the only
// truncation happens at the final divide.
func PayoutExpected(amount, oddsBps, multiplierBps uint64) (uint64, error) {
	prod := getWide()
	defer putWide(prod)
	tmp := getWide()
	defer putWide(tmp)

	prod.SetUint64(amount)
	tmp.SetUint64(oddsBps)
	prod.Mul(prod, tmp)
	tmp.SetUint64(multiplierBps)
	prod.Mul(prod, tmp)

	tmp.SetUint64(ScaleBps * ScaleBps)
	prod.Quo(prod, tmp)

	if !prod.IsUint64() {
		return 0, ErrOverflow
	}
	return prod.Uint64(), nil
}

// FeeOnPayout computes the platform cut on a winning payout:
// floor(payout * feeBps / ScaleBps).
func FeeOnPayout(payout, feeBps uint64) (uint64, error) {
	return MulDivFloor(payout, feeBps, ScaleBps)
}
