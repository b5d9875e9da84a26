// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/pss/validators"
)

func newTestState(t *testing.T, db database.Database) State {
	t.Helper()

	s, err := New(db, log.NoLog{})
	require.NoError(t, err)
	return s
}

func newWeightedSet(weights map[ids.NodeID]uint64) validators.Set {
	vdrs := make(validators.Set, len(weights))
	for nodeID, weight := range weights {
		vdrs[nodeID] = &validators.Validator{
			NodeID: nodeID,
			Weight: weight,
		}
	}
	return vdrs
}

func requireSameWeights(require *require.Assertions, expected, actual validators.Set) {
	require.Len(actual, len(expected))
	for nodeID, vdr := range expected {
		require.Contains(actual, nodeID)
		require.Equal(vdr.Weight, actual[nodeID].Weight)
	}
}

func TestStateInitiallyEmpty(t *testing.T) {
	require := require.New(t)

	s := newTestState(t, memdb.New())
	consumerID := ids.GenerateTestID()

	require.Zero(s.GetHeight())
	require.Zero(s.GetConsumerTopN(consumerID))
	require.False(s.IsConsumerRunning(consumerID))
	require.Empty(s.GetRunningConsumers())
	require.Empty(s.GetOptedIn(consumerID))
	require.Empty(s.GetCurrentValidators())

	_, err := s.GetPowerSnapshot(7)
	require.ErrorIs(err, database.ErrNotFound)

	_, _, ok := s.LatestPowerSnapshot()
	require.False(ok)
}

func TestStatePersistence(t *testing.T) {
	require := require.New(t)

	var (
		db = memdb.New()

		consumerID      = ids.GenerateTestID()
		otherConsumerID = ids.GenerateTestID()
		nodeA           = ids.GenerateTestNodeID()
		nodeB           = ids.GenerateTestNodeID()

		liveVdrs = newWeightedSet(map[ids.NodeID]uint64{
			nodeA: 60,
			nodeB: 40,
		})
		snapshotVdrs = newWeightedSet(map[ids.NodeID]uint64{
			nodeA: 55,
			nodeB: 45,
		})
	)

	s := newTestState(t, db)
	s.SetConsumerTopN(consumerID, 66)
	s.SetConsumerRunning(consumerID, true)
	s.SetConsumerTopN(otherConsumerID, 80)
	s.AddOptedIn(consumerID, nodeA)
	s.AddOptedIn(consumerID, nodeB)
	s.RemoveOptedIn(consumerID, nodeB)
	s.SetCurrentValidators(liveVdrs)
	s.AddPowerSnapshot(12, snapshotVdrs)
	s.SetHeight(12)
	require.NoError(s.Commit())

	reloaded := newTestState(t, db)
	require.Equal(uint64(12), reloaded.GetHeight())
	require.Equal(uint32(66), reloaded.GetConsumerTopN(consumerID))
	require.Equal(uint32(80), reloaded.GetConsumerTopN(otherConsumerID))
	require.True(reloaded.IsConsumerRunning(consumerID))
	require.False(reloaded.IsConsumerRunning(otherConsumerID))
	require.Equal([]ids.ID{consumerID}, reloaded.GetRunningConsumers())

	optedIn := reloaded.GetOptedIn(consumerID)
	require.True(optedIn.Contains(nodeA))
	require.False(optedIn.Contains(nodeB))

	requireSameWeights(require, liveVdrs, reloaded.GetCurrentValidators())

	vdrs, err := reloaded.GetPowerSnapshot(12)
	require.NoError(err)
	requireSameWeights(require, snapshotVdrs, vdrs)

	latest, height, ok := reloaded.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(12), height)
	requireSameWeights(require, snapshotVdrs, latest)
}

func TestStateOptedInCopies(t *testing.T) {
	require := require.New(t)

	s := newTestState(t, memdb.New())
	consumerID := ids.GenerateTestID()
	nodeID := ids.GenerateTestNodeID()

	s.AddOptedIn(consumerID, nodeID)

	// Mutating what GetOptedIn hands back must not touch the state.
	optedIn := s.GetOptedIn(consumerID)
	optedIn.Remove(nodeID)
	require.True(s.GetOptedIn(consumerID).Contains(nodeID))

	// Re-adding an existing entry is a no-op.
	s.AddOptedIn(consumerID, nodeID)
	require.Equal(1, s.GetOptedIn(consumerID).Len())
}

func TestStateValidatorsAreIsolated(t *testing.T) {
	require := require.New(t)

	s := newTestState(t, memdb.New())
	nodeID := ids.GenerateTestNodeID()
	vdrs := newWeightedSet(map[ids.NodeID]uint64{
		nodeID: 10,
	})

	s.SetCurrentValidators(vdrs)
	s.AddPowerSnapshot(1, vdrs)

	// Mutating the set the caller passed in must not write through.
	vdrs[nodeID].Weight = 99
	require.Equal(uint64(10), s.GetCurrentValidators()[nodeID].Weight)

	// Neither must mutating what the state hands back.
	s.GetCurrentValidators()[nodeID].Weight = 42
	require.Equal(uint64(10), s.GetCurrentValidators()[nodeID].Weight)

	snapshot, err := s.GetPowerSnapshot(1)
	require.NoError(err)
	snapshot[nodeID].Weight = 17

	snapshot, err = s.GetPowerSnapshot(1)
	require.NoError(err)
	require.Equal(uint64(10), snapshot[nodeID].Weight)
}

func TestStateLatestPowerSnapshot(t *testing.T) {
	require := require.New(t)

	s := newTestState(t, memdb.New())
	nodeID := ids.GenerateTestNodeID()

	for _, height := range []uint64{5, 20, 10} {
		s.AddPowerSnapshot(height, newWeightedSet(map[ids.NodeID]uint64{
			nodeID: height,
		}))
	}

	latest, height, ok := s.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(20), height)
	require.Equal(uint64(20), latest[nodeID].Weight)
}

func TestStatePruneHistory(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s := newTestState(t, db)
	nodeID := ids.GenerateTestNodeID()

	for _, height := range []uint64{5, 10, 15} {
		s.AddPowerSnapshot(height, newWeightedSet(map[ids.NodeID]uint64{
			nodeID: height,
		}))
	}
	require.NoError(s.Commit())

	s.PruneHistory(11)
	require.NoError(s.Commit())

	reloaded := newTestState(t, db)
	for _, height := range []uint64{5, 10} {
		_, err := reloaded.GetPowerSnapshot(height)
		require.ErrorIs(err, database.ErrNotFound)
	}

	_, height, ok := reloaded.LatestPowerSnapshot()
	require.True(ok)
	require.Equal(uint64(15), height)
}

func TestHeightKeyRoundTrip(t *testing.T) {
	require := require.New(t)

	for _, height := range []uint64{0, 1, 42, ^uint64(0)} {
		parsed, err := unmarshalHeightKey(marshalHeightKey(height))
		require.NoError(err)
		require.Equal(height, parsed)
	}

	_, err := unmarshalHeightKey([]byte{0x01})
	require.Error(err)
}
