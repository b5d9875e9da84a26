// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/pss/state"
)

var (
	ErrValidatorInTopN     = errors.New("validator is in the consumer's top N")
	ErrValidatorNotOptedIn = errors.New("validator is not opted in to the consumer")
)

// OptIn authorizes [nodeID] to secure [consumerID]. Opting in is an
// unconditional idempotent union: it succeeds whether or not the validator
// is already opted in, and whether or not the consumer is running yet.
func (b *Backend) OptIn(chain state.Chain, consumerID ids.ID, nodeID ids.NodeID) error {
	chain.AddOptedIn(consumerID, nodeID)
	b.Metrics.IncOptIns()
	b.Log.Debug("validator opted in",
		"nodeID", nodeID,
		"consumerID", consumerID,
	)
	return nil
}

// IsOptedIn reports whether [nodeID] is currently authorized for
// [consumerID].
func (b *Backend) IsOptedIn(chain state.Chain, nodeID ids.NodeID, consumerID ids.ID) bool {
	return chain.GetOptedIn(consumerID).Contains(nodeID)
}

// IsTopN reports whether [nodeID] is in [consumerID]'s top-N selection,
// computed from the most recent recorded voting-power snapshot. End-of-block
// reconciliation uses the live powers instead; the opt-out guard
// deliberately uses the history head so that a power change in the current
// block cannot let a validator opt out before the ratchet has seen it.
func (b *Backend) IsTopN(chain state.Chain, nodeID ids.NodeID, consumerID ids.ID) (bool, error) {
	vdrs, _, ok := chain.LatestPowerSnapshot()
	if !ok {
		// Nothing recorded yet, so nobody is force-selected.
		return false, nil
	}
	topVdrs, err := b.Selector.TopN(vdrs, consumerID, chain.GetConsumerTopN(consumerID))
	if err != nil {
		return false, err
	}
	return topVdrs.Contains(nodeID), nil
}

// OptOut revokes [nodeID]'s authorization for [consumerID]. The top-N check
// runs first: a force-selected validator is rejected with
// ErrValidatorInTopN even if it never opted in, so that is the only
// observable error when both preconditions fail.
func (b *Backend) OptOut(chain state.Chain, consumerID ids.ID, nodeID ids.NodeID) error {
	isTopN, err := b.IsTopN(chain, nodeID, consumerID)
	if err != nil {
		return err
	}
	if isTopN {
		b.Metrics.IncRejectedOptOuts()
		return fmt.Errorf("%w: %s on consumer %s", ErrValidatorInTopN, nodeID, consumerID)
	}
	if !b.IsOptedIn(chain, nodeID, consumerID) {
		b.Metrics.IncRejectedOptOuts()
		return fmt.Errorf("%w: %s on consumer %s", ErrValidatorNotOptedIn, nodeID, consumerID)
	}

	chain.RemoveOptedIn(consumerID, nodeID)
	b.Metrics.IncOptOuts()
	b.Log.Debug("validator opted out",
		"nodeID", nodeID,
		"consumerID", consumerID,
	)
	return nil
}
