// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"slices"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/luxfi/pss/validators"
)

var _ Diff = (*diff)(nil)

// Diff is a copy-on-write layer over a parent Chain. The block pipeline
// builds one diff per block, runs every state transition against it, and
// applies it onto the parent only when the block is accepted. Reads fall
// through to the parent for anything the diff has not touched, so creating a
// diff is cheap regardless of state size.
type Diff interface {
	Chain

	// Apply pushes every change recorded in this diff onto [chain], in a
	// deterministic order.
	Apply(chain Chain)
}

type diff struct {
	parent Chain

	// consumerID -> modified N
	topNDiffs map[ids.ID]uint32
	// consumerID -> modified lifecycle bit
	runningDiffs map[ids.ID]bool
	// consumerID -> nodeID -> opted in (true) or out (false)
	optedInDiffs map[ids.ID]map[ids.NodeID]bool

	// replaced live validator powers, nil while untouched
	currentValidators validators.Set

	addedSnapshots map[uint64]validators.Set

	height    uint64
	heightSet bool
}

func NewDiffOn(parent Chain) Diff {
	return &diff{
		parent:       parent,
		topNDiffs:    make(map[ids.ID]uint32),
		runningDiffs: make(map[ids.ID]bool),
		optedInDiffs: make(map[ids.ID]map[ids.NodeID]bool),

		addedSnapshots: make(map[uint64]validators.Set),
	}
}

func (d *diff) GetConsumerTopN(consumerID ids.ID) uint32 {
	if n, ok := d.topNDiffs[consumerID]; ok {
		return n
	}
	return d.parent.GetConsumerTopN(consumerID)
}

func (d *diff) SetConsumerTopN(consumerID ids.ID, n uint32) {
	d.topNDiffs[consumerID] = n
}

func (d *diff) GetOptedIn(consumerID ids.ID) set.Set[ids.NodeID] {
	optedIn := d.parent.GetOptedIn(consumerID)
	for nodeID, added := range d.optedInDiffs[consumerID] {
		if added {
			optedIn.Add(nodeID)
		} else {
			optedIn.Remove(nodeID)
		}
	}
	return optedIn
}

func (d *diff) AddOptedIn(consumerID ids.ID, nodeID ids.NodeID) {
	d.markOptedIn(consumerID, nodeID, true)
}

func (d *diff) RemoveOptedIn(consumerID ids.ID, nodeID ids.NodeID) {
	d.markOptedIn(consumerID, nodeID, false)
}

func (d *diff) markOptedIn(consumerID ids.ID, nodeID ids.NodeID, added bool) {
	diffs, ok := d.optedInDiffs[consumerID]
	if !ok {
		diffs = make(map[ids.NodeID]bool)
		d.optedInDiffs[consumerID] = diffs
	}
	diffs[nodeID] = added
}

func (d *diff) IsConsumerRunning(consumerID ids.ID) bool {
	if running, ok := d.runningDiffs[consumerID]; ok {
		return running
	}
	return d.parent.IsConsumerRunning(consumerID)
}

func (d *diff) SetConsumerRunning(consumerID ids.ID, running bool) {
	d.runningDiffs[consumerID] = running
}

func (d *diff) GetRunningConsumers() []ids.ID {
	running := set.Of(d.parent.GetRunningConsumers()...)
	for consumerID, isRunning := range d.runningDiffs {
		if isRunning {
			running.Add(consumerID)
		} else {
			running.Remove(consumerID)
		}
	}
	runningList := running.List()
	slices.SortFunc(runningList, func(a, b ids.ID) int {
		return a.Compare(b)
	})
	return runningList
}

func (d *diff) GetCurrentValidators() validators.Set {
	if d.currentValidators != nil {
		return d.currentValidators.Clone()
	}
	return d.parent.GetCurrentValidators()
}

func (d *diff) SetCurrentValidators(vdrs validators.Set) {
	d.currentValidators = vdrs.Clone()
}

func (d *diff) GetHeight() uint64 {
	if d.heightSet {
		return d.height
	}
	return d.parent.GetHeight()
}

func (d *diff) SetHeight(height uint64) {
	d.height = height
	d.heightSet = true
}

func (d *diff) AddPowerSnapshot(height uint64, vdrs validators.Set) {
	d.addedSnapshots[height] = vdrs.Clone()
}

func (d *diff) GetPowerSnapshot(height uint64) (validators.Set, error) {
	if vdrs, ok := d.addedSnapshots[height]; ok {
		return vdrs.Clone(), nil
	}
	return d.parent.GetPowerSnapshot(height)
}

func (d *diff) LatestPowerSnapshot() (validators.Set, uint64, bool) {
	parentVdrs, parentHeight, parentFound := d.parent.LatestPowerSnapshot()

	var (
		latestHeight uint64
		found        bool
	)
	for height := range d.addedSnapshots {
		if !found || height > latestHeight {
			latestHeight = height
			found = true
		}
	}
	if !found {
		return parentVdrs, parentHeight, parentFound
	}
	if parentFound && parentHeight > latestHeight {
		return parentVdrs, parentHeight, true
	}
	return d.addedSnapshots[latestHeight].Clone(), latestHeight, true
}

func (d *diff) Apply(chain Chain) {
	for _, consumerID := range sortedIDKeys(d.topNDiffs) {
		chain.SetConsumerTopN(consumerID, d.topNDiffs[consumerID])
	}
	for _, consumerID := range sortedIDKeys(d.runningDiffs) {
		chain.SetConsumerRunning(consumerID, d.runningDiffs[consumerID])
	}
	for _, consumerID := range sortedIDKeys(d.optedInDiffs) {
		diffs := d.optedInDiffs[consumerID]
		nodeIDs := make([]ids.NodeID, 0, len(diffs))
		for nodeID := range diffs {
			nodeIDs = append(nodeIDs, nodeID)
		}
		slices.SortFunc(nodeIDs, func(a, b ids.NodeID) int {
			return a.Compare(b)
		})
		for _, nodeID := range nodeIDs {
			if diffs[nodeID] {
				chain.AddOptedIn(consumerID, nodeID)
			} else {
				chain.RemoveOptedIn(consumerID, nodeID)
			}
		}
	}
	if d.currentValidators != nil {
		chain.SetCurrentValidators(d.currentValidators)
	}

	heights := make([]uint64, 0, len(d.addedSnapshots))
	for height := range d.addedSnapshots {
		heights = append(heights, height)
	}
	slices.Sort(heights)
	for _, height := range heights {
		chain.AddPowerSnapshot(height, d.addedSnapshots[height])
	}

	if d.heightSet {
		chain.SetHeight(d.height)
	}
}

func sortedIDKeys[V any](m map[ids.ID]V) []ids.ID {
	keys := make([]ids.ID, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b ids.ID) int {
		return a.Compare(b)
	})
	return keys
}
