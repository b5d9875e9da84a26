// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"math/bits"
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

// TopNValidators returns the validators collectively holding at least [n]
// percent of the total weight of [vdrs], taken in descending weight order.
//
// The selection walks the validators from heaviest to lightest, admitting
// each one while the weight accumulated so far is below the threshold
// floor(totalWeight * n / 100). Validators with equal weight are admitted or
// rejected as a group: once any validator at a weight level is selected,
// every validator at that exact level is, even past the threshold. No
// strictly lighter validator is admitted once the threshold has been met.
//
// The threshold is computed with exact integer arithmetic so that every node
// replaying the same state selects the same set. Zero-weight validators are
// never selected.
//
// Invariant: 0 <= n <= 100. The only returned error is a weight-sum
// overflow, which well-formed provider state cannot produce.
func TopNValidators(vdrs Set, n uint32) (set.Set[ids.NodeID], error) {
	totalWeight, err := vdrs.TotalWeight()
	if err != nil {
		return nil, err
	}

	topVdrs := set.NewSet[ids.NodeID](len(vdrs))
	if n == 0 || totalWeight == 0 {
		return topVdrs, nil
	}

	// threshold = floor(totalWeight * n / 100). The product is computed in
	// 128 bits so the threshold is exact even when totalWeight is close to
	// the uint64 limit. Because n <= 100, the quotient always fits back in a
	// uint64.
	hi, lo := bits.Mul64(totalWeight, uint64(n))
	threshold, _ := bits.Div64(hi, lo, 100)

	// Equal-weight validators are ordered by NodeID so that iteration order
	// is reproducible. The selection itself treats them as a group.
	sorted := make([]*Validator, 0, len(vdrs))
	for _, vdr := range vdrs {
		sorted = append(sorted, vdr)
	}
	slices.SortFunc(sorted, func(a, b *Validator) int {
		if a.Weight != b.Weight {
			if a.Weight > b.Weight {
				return -1
			}
			return 1
		}
		return a.NodeID.Compare(b.NodeID)
	})

	var (
		accumulated  uint64
		lastAdmitted uint64
	)
	for _, vdr := range sorted {
		if vdr.Weight == 0 {
			break
		}
		if accumulated >= threshold && vdr.Weight != lastAdmitted {
			break
		}
		topVdrs.Add(vdr.NodeID)
		accumulated += vdr.Weight
		lastAdmitted = vdr.Weight
	}
	return topVdrs, nil
}
