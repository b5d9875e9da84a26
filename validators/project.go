// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

// Project restricts [vdrs] to the validators contained in [optedIn]. This is
// the validator set a consumer chain is secured by: the provider's current
// validators filtered down to the ones authorized for that consumer.
//
// An empty or nil [optedIn] set yields an empty result.
func Project(vdrs Set, optedIn set.Set[ids.NodeID]) Set {
	projected := make(Set, optedIn.Len())
	for nodeID, vdr := range vdrs {
		if optedIn.Contains(nodeID) {
			projected[nodeID] = vdr
		}
	}
	return projected
}
