// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/utils"

	safemath "github.com/luxfi/math"
)

var _ utils.Sortable[*CanonicalValidator] = (*CanonicalValidator)(nil)

// CanonicalValidator is an entry of the deterministically ordered validator
// list sent to a consumer chain. Validators sharing a public key are merged
// into a single entry with their weights summed.
type CanonicalValidator struct {
	PublicKey      *bls.PublicKey
	PublicKeyBytes []byte
	Weight         uint64
	NodeIDs        []ids.NodeID
}

func (v *CanonicalValidator) Compare(o *CanonicalValidator) int {
	return bytes.Compare(v.PublicKeyBytes, o.PublicKeyBytes)
}

// CanonicalSet is the payload handed to the packet-relay layer when the
// provider announces a consumer's validator set.
type CanonicalSet struct {
	// Validators in canonical (public key) ordering. Validators without a
	// registered public key are omitted from the list but still counted in
	// TotalWeight.
	Validators []*CanonicalValidator
	// TotalWeight is the combined weight of every validator in the source
	// set, including the omitted ones.
	TotalWeight uint64
}

// Flatten converts [vdrs] into its canonical ordering. Every replica must
// produce byte-identical canonical sets from the same input, so the ordering
// depends only on public key bytes, never on map iteration order.
func Flatten(vdrs Set) (CanonicalSet, error) {
	var (
		pkToVdr     = make(map[string]*CanonicalValidator, len(vdrs))
		totalWeight uint64
		err         error
	)
	for _, vdr := range vdrs {
		totalWeight, err = safemath.Add64(totalWeight, vdr.Weight)
		if err != nil {
			return CanonicalSet{}, fmt.Errorf("%w: %w", ErrWeightOverflow, err)
		}

		if len(vdr.PublicKey) == 0 {
			continue
		}
		pk := bls.PublicKeyFromValidUncompressedBytes(vdr.PublicKey)
		if pk == nil {
			continue
		}

		pkBytes := bls.PublicKeyToUncompressedBytes(pk)
		pkKey := string(pkBytes)
		if existing, ok := pkToVdr[pkKey]; ok {
			existing.Weight, err = safemath.Add64(existing.Weight, vdr.Weight)
			if err != nil {
				return CanonicalSet{}, fmt.Errorf("%w: %w", ErrWeightOverflow, err)
			}
			existing.NodeIDs = append(existing.NodeIDs, vdr.NodeID)
			continue
		}
		pkToVdr[pkKey] = &CanonicalValidator{
			PublicKey:      pk,
			PublicKeyBytes: pkBytes,
			Weight:         vdr.Weight,
			NodeIDs:        []ids.NodeID{vdr.NodeID},
		}
	}

	vdrList := slices.Collect(maps.Values(pkToVdr))
	utils.Sort(vdrList)

	// NodeIDs within a merged entry are sorted for the same reason the outer
	// list is.
	for _, vdr := range vdrList {
		slices.SortFunc(vdr.NodeIDs, func(a, b ids.NodeID) int {
			return a.Compare(b)
		})
	}
	return CanonicalSet{
		Validators:  vdrList,
		TotalWeight: totalWeight,
	}, nil
}
