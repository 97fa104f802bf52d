package tournament

import (
	sdkmath "cosmossdk.io/math"
)

const PayoutDenominator = 100

// PayoutShares are the first, second and third place percentages of the pool.
var PayoutShares = [3]uint64{60, 30, 10}

// ComputePayouts splits pool with truncating division per place. Whatever the
// truncation leaves behind stays in escrow unallocated.
func ComputePayouts(pool uint64) [3]uint64 {
	var result [3]uint64

	total := sdkmath.NewUint(pool)

	for i, share := range PayoutShares {
		result[i] = total.MulUint64(share).QuoUint64(PayoutDenominator).Uint64()
	}

	return result
}
