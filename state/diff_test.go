// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
)

func TestDiffFallsThroughToParent(t *testing.T) {
	require := require.New(t)

	var (
		s          = newTestState(t, memdb.New())
		consumerID = ids.GenerateTestID()
		nodeID     = ids.GenerateTestNodeID()
	)
	s.SetConsumerTopN(consumerID, 66)
	s.SetConsumerRunning(consumerID, true)
	s.AddOptedIn(consumerID, nodeID)
	s.SetHeight(3)
	s.AddPowerSnapshot(3, newWeightedSet(map[ids.NodeID]uint64{
		nodeID: 10,
	}))

	d := NewDiffOn(s)
	require.Equal(uint32(66), d.GetConsumerTopN(consumerID))
	require.True(d.IsConsumerRunning(consumerID))
	require.True(d.GetOptedIn(consumerID).Contains(nodeID))
	require.Equal(uint64(3), d.GetHeight())
	require.Equal([]ids.ID{consumerID}, d.GetRunningConsumers())

	_, height, ok := d.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(3), height)
}

func TestDiffShadowsParent(t *testing.T) {
	require := require.New(t)

	var (
		s          = newTestState(t, memdb.New())
		consumerID = ids.GenerateTestID()
		nodeA      = ids.GenerateTestNodeID()
		nodeB      = ids.GenerateTestNodeID()
	)
	s.SetConsumerTopN(consumerID, 50)
	s.AddOptedIn(consumerID, nodeA)

	d := NewDiffOn(s)
	d.SetConsumerTopN(consumerID, 90)
	d.RemoveOptedIn(consumerID, nodeA)
	d.AddOptedIn(consumerID, nodeB)
	d.SetConsumerRunning(consumerID, true)
	d.SetHeight(8)

	// The diff sees its own writes.
	require.Equal(uint32(90), d.GetConsumerTopN(consumerID))
	optedIn := d.GetOptedIn(consumerID)
	require.False(optedIn.Contains(nodeA))
	require.True(optedIn.Contains(nodeB))
	require.True(d.IsConsumerRunning(consumerID))
	require.Equal(uint64(8), d.GetHeight())

	// The parent does not.
	require.Equal(uint32(50), s.GetConsumerTopN(consumerID))
	require.True(s.GetOptedIn(consumerID).Contains(nodeA))
	require.False(s.IsConsumerRunning(consumerID))
	require.Zero(s.GetHeight())
}

func TestDiffApply(t *testing.T) {
	require := require.New(t)

	var (
		s          = newTestState(t, memdb.New())
		consumerID = ids.GenerateTestID()
		nodeA      = ids.GenerateTestNodeID()
		nodeB      = ids.GenerateTestNodeID()

		liveVdrs = newWeightedSet(map[ids.NodeID]uint64{
			nodeA: 7,
			nodeB: 3,
		})
	)
	s.AddOptedIn(consumerID, nodeA)

	d := NewDiffOn(s)
	d.SetConsumerTopN(consumerID, 75)
	d.SetConsumerRunning(consumerID, true)
	d.RemoveOptedIn(consumerID, nodeA)
	d.AddOptedIn(consumerID, nodeB)
	d.SetCurrentValidators(liveVdrs)
	d.AddPowerSnapshot(9, liveVdrs)
	d.SetHeight(9)

	d.Apply(s)

	require.Equal(uint32(75), s.GetConsumerTopN(consumerID))
	require.True(s.IsConsumerRunning(consumerID))
	optedIn := s.GetOptedIn(consumerID)
	require.False(optedIn.Contains(nodeA))
	require.True(optedIn.Contains(nodeB))
	require.Equal(liveVdrs, s.GetCurrentValidators())
	require.Equal(uint64(9), s.GetHeight())

	vdrs, err := s.GetPowerSnapshot(9)
	require.NoError(err)
	require.Equal(liveVdrs, vdrs)
}

func TestDiffLatestSnapshotPrefersNewest(t *testing.T) {
	require := require.New(t)

	var (
		s      = newTestState(t, memdb.New())
		nodeID = ids.GenerateTestNodeID()
	)
	s.AddPowerSnapshot(10, newWeightedSet(map[ids.NodeID]uint64{
		nodeID: 1,
	}))

	d := NewDiffOn(s)

	// A snapshot older than the parent's head does not change the head.
	d.AddPowerSnapshot(5, newWeightedSet(map[ids.NodeID]uint64{
		nodeID: 2,
	}))
	_, height, ok := d.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(10), height)

	// A newer one does.
	d.AddPowerSnapshot(15, newWeightedSet(map[ids.NodeID]uint64{
		nodeID: 3,
	}))
	latest, height, ok := d.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(15), height)
	require.Equal(uint64(3), latest[nodeID].Weight)
}
