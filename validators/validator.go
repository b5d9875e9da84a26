// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/math"
)

var ErrWeightOverflow = errors.New("weight overflowed")

// Validator describes a single provider-chain validator as seen by partial
// set security: its identity, staking key material, and voting weight.
type Validator struct {
	NodeID    ids.NodeID `serialize:"true" json:"nodeID"`
	PublicKey []byte     `serialize:"true" json:"publicKey"`
	Weight    uint64     `serialize:"true" json:"weight"`
}

// Set maps every provider validator to its current description. A node absent
// from the map is simply not a validator. Weights are non-negative by type.
type Set map[ids.NodeID]*Validator

// TotalWeight returns the combined weight of every validator in [s].
func (s Set) TotalWeight() (uint64, error) {
	var (
		total uint64
		err   error
	)
	for _, vdr := range s {
		total, err = safemath.Add64(total, vdr.Weight)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrWeightOverflow, err)
		}
	}
	return total, nil
}

// Clone returns a deep copy of [s]. Mutating the copy, including the weight
// or key bytes of an individual validator, never affects the original.
func (s Set) Clone() Set {
	cloned := make(Set, len(s))
	for nodeID, vdr := range s {
		copied := *vdr
		copied.PublicKey = slices.Clone(vdr.PublicKey)
		cloned[nodeID] = &copied
	}
	return cloned
}

// Fingerprint returns a digest of the selection-relevant contents of [s]:
// every validator's NodeID and weight, in NodeID order. Two sets with the
// same fingerprint produce the same top-N selection for every n.
func (s Set) Fingerprint() ids.ID {
	nodeIDs := make([]ids.NodeID, 0, len(s))
	for nodeID := range s {
		nodeIDs = append(nodeIDs, nodeID)
	}
	slices.SortFunc(nodeIDs, func(a, b ids.NodeID) int {
		return a.Compare(b)
	})

	preimage := make([]byte, 0, len(nodeIDs)*(ids.NodeIDLen+8))
	for _, nodeID := range nodeIDs {
		preimage = append(preimage, nodeID[:]...)
		preimage = binary.BigEndian.AppendUint64(preimage, s[nodeID].Weight)
	}
	return ids.ID(sha256.Sum256(preimage))
}
