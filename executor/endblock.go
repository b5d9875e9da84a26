// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"fmt"
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/pss/state"
	"github.com/luxfi/pss/validators"
)

// EndBlock force-opts every top-N validator in for every running consumer
// chain. The selection uses the live current validator powers, not the
// history head, and only ever adds: opted-in sets after this call are
// supersets of the sets before it. The block pipeline invokes this exactly
// once per block, after all transactions have been applied.
//
// Consumers are independent; they are visited in sorted order only so that
// logs and metrics are reproducible across replays.
func (b *Backend) EndBlock(chain state.Chain) error {
	currentVdrs := chain.GetCurrentValidators()
	for _, consumerID := range chain.GetRunningConsumers() {
		n := chain.GetConsumerTopN(consumerID)
		topVdrs, err := validators.TopNValidators(currentVdrs, n)
		if err != nil {
			return fmt.Errorf("failed to select top %d%% for consumer %s: %w", n, consumerID, err)
		}

		optedIn := chain.GetOptedIn(consumerID)
		newlySelected := make([]ids.NodeID, 0, topVdrs.Len())
		for nodeID := range topVdrs {
			if !optedIn.Contains(nodeID) {
				newlySelected = append(newlySelected, nodeID)
			}
		}
		if len(newlySelected) == 0 {
			continue
		}

		slices.SortFunc(newlySelected, func(a, b ids.NodeID) int {
			return a.Compare(b)
		})
		for _, nodeID := range newlySelected {
			chain.AddOptedIn(consumerID, nodeID)
		}

		b.Metrics.AddReconciledValidators(len(newlySelected))
		b.Log.Debug("reconciled top-N validators",
			"consumerID", consumerID,
			"topN", n,
			"added", len(newlySelected),
		)
	}
	return nil
}

// RecordPowerSnapshot appends the live validator powers to the voting-power
// history as the record for [height]. The block pipeline calls this after
// EndBlock so that the next block's opt-out guard sees the powers this block
// finalized.
func (b *Backend) RecordPowerSnapshot(chain state.Chain, height uint64) {
	chain.AddPowerSnapshot(height, chain.GetCurrentValidators())
	chain.SetHeight(height)
}

// PruneHistory drops power snapshots older than the configured retention
// window. Retention only affects how far back snapshots can be queried; the
// opt-out guard only ever reads the history head.
func (b *Backend) PruneHistory(s state.State) {
	height := s.GetHeight()
	if height <= b.Config.HistoryLength {
		return
	}
	s.PruneHistory(height - b.Config.HistoryLength)
}
