// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/luxfi/database"
	"github.com/luxfi/pss/validators"
)

// powerSnapshot is the stored form of one voting-power history entry. The
// validator list is sorted by NodeID before marshalling so that the stored
// bytes are canonical.
type powerSnapshot struct {
	Validators []validators.Validator `serialize:"true"`
}

// marshalHeightKey inverts [height] so that iterating the history database
// yields the most recent snapshot first.
func marshalHeightKey(height uint64) []byte {
	key := make([]byte, database.Uint64Size)
	binary.BigEndian.PutUint64(key, ^height)
	return key
}

func unmarshalHeightKey(key []byte) (uint64, error) {
	if len(key) != database.Uint64Size {
		return 0, fmt.Errorf("expected history key length %d, got %d", database.Uint64Size, len(key))
	}
	return ^binary.BigEndian.Uint64(key), nil
}

func marshalSnapshot(vdrs validators.Set) ([]byte, error) {
	snapshot := powerSnapshot{
		Validators: make([]validators.Validator, 0, len(vdrs)),
	}
	for _, vdr := range vdrs {
		snapshot.Validators = append(snapshot.Validators, *vdr)
	}
	slices.SortFunc(snapshot.Validators, func(a, b validators.Validator) int {
		return a.NodeID.Compare(b.NodeID)
	})
	return Codec.Marshal(CodecVersion, &snapshot)
}

func unmarshalSnapshot(data []byte) (validators.Set, error) {
	var snapshot powerSnapshot
	if _, err := Codec.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	vdrs := make(validators.Set, len(snapshot.Validators))
	for i := range snapshot.Validators {
		vdr := snapshot.Validators[i]
		vdrs[vdr.NodeID] = &vdr
	}
	return vdrs, nil
}
