// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/pss/config"
	"github.com/luxfi/pss/state"
	"github.com/luxfi/pss/validators"
)

// recordingMetrics counts observations so tests can assert on cache and
// gate behavior.
type recordingMetrics struct {
	optIns               int
	optOuts              int
	rejectedOptOuts      int
	reconciledValidators int
	selectionsComputed   int
	selectionsCached     int
}

func (m *recordingMetrics) IncOptIns()          { m.optIns++ }
func (m *recordingMetrics) IncOptOuts()         { m.optOuts++ }
func (m *recordingMetrics) IncRejectedOptOuts() { m.rejectedOptOuts++ }
func (m *recordingMetrics) AddReconciledValidators(count int) {
	m.reconciledValidators += count
}
func (m *recordingMetrics) IncSelectionsComputed() { m.selectionsComputed++ }
func (m *recordingMetrics) IncSelectionsCached()   { m.selectionsCached++ }

type testEnv struct {
	backend *Backend
	state   state.State
	metrics *recordingMetrics
}

func newTestEnv(t *testing.T, tracked ...ids.ID) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig
	cfg.TrackedConsumers = set.Of(tracked...)

	s, err := state.New(memdb.New(), log.NoLog{})
	require.NoError(t, err)

	m := &recordingMetrics{}
	return &testEnv{
		backend: NewBackend(&cfg, log.NoLog{}, m),
		state:   s,
		metrics: m,
	}
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
