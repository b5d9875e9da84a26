// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"fmt"
	"slices"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/pss/validators"
)

var (
	_ State = (*state)(nil)

	ConsumersPrefix = []byte("consumers")
	OptedInPrefix   = []byte("optedIn")
	HistoryPrefix   = []byte("history")
	SingletonPrefix = []byte("singleton")

	HeightKey            = []byte("height")
	CurrentValidatorsKey = []byte("current validators")
)

// Chain is the mutable provider-side view of partial set security state. All
// reads and writes are deterministic transformations of explicit state; no
// method consults the clock, randomness, or anything beyond its arguments
// and the state value itself.
type Chain interface {
	// GetConsumerTopN returns the configured N (0-100) for [consumerID].
	// Consumers without a configured value report 0. The value is set by
	// governance upstream and is not re-validated here.
	GetConsumerTopN(consumerID ids.ID) uint32
	SetConsumerTopN(consumerID ids.ID, n uint32)

	// GetOptedIn returns the validators currently authorized to secure
	// [consumerID]. Consumers never opted in to report an empty set, never
	// an error. The returned set is a copy.
	GetOptedIn(consumerID ids.ID) set.Set[ids.NodeID]

	// AddOptedIn authorizes [nodeID] for [consumerID], creating the
	// consumer's entry if it does not exist yet. Idempotent.
	AddOptedIn(consumerID ids.ID, nodeID ids.NodeID)

	// RemoveOptedIn revokes [nodeID]'s authorization for [consumerID].
	// Removing an absent entry is a no-op.
	RemoveOptedIn(consumerID ids.ID, nodeID ids.NodeID)

	IsConsumerRunning(consumerID ids.ID) bool
	SetConsumerRunning(consumerID ids.ID, running bool)

	// GetRunningConsumers returns the running consumer chains sorted by ID.
	// Consumers are independent of each other; the ordering only makes
	// iteration reproducible.
	GetRunningConsumers() []ids.ID

	// GetCurrentValidators returns the live validator powers of the
	// provider. The returned set is a copy.
	GetCurrentValidators() validators.Set
	SetCurrentValidators(vdrs validators.Set)

	GetHeight() uint64
	SetHeight(height uint64)

	// AddPowerSnapshot records the validator powers observed at [height] in
	// the voting-power history.
	AddPowerSnapshot(height uint64, vdrs validators.Set)

	// GetPowerSnapshot returns the recorded powers at exactly [height], or
	// database.ErrNotFound.
	GetPowerSnapshot(height uint64) (validators.Set, error)

	// LatestPowerSnapshot returns the most recently recorded snapshot and
	// its height. Reports false if the history is empty.
	LatestPowerSnapshot() (validators.Set, uint64, bool)
}

// State is a Chain persisted to a database.
type State interface {
	Chain

	// PruneHistory drops every power snapshot recorded strictly below
	// [height].
	PruneHistory(height uint64)

	// Commit persists all pending changes atomically.
	Commit() error

	// Abort discards all pending database writes.
	Abort()

	Close() error
}

type state struct {
	log log.Logger

	baseDB      *versiondb.Database
	consumersDB database.Database
	optedInDB   database.Database
	historyDB   database.Database
	singletonDB database.Database

	// consumerID -> configuration and lifecycle bit
	consumers         map[ids.ID]*consumerRecord
	modifiedConsumers set.Set[ids.ID]

	// consumerID -> authorized validators
	optedIn map[ids.ID]set.Set[ids.NodeID]
	// consumerID -> nodeID -> added (true) or removed (false) since the last
	// commit
	modifiedOptedIn map[ids.ID]map[ids.NodeID]bool

	currentValidators         validators.Set
	modifiedCurrentValidators bool

	// height -> recorded validator powers
	history          map[uint64]validators.Set
	addedSnapshots   map[uint64]validators.Set
	removedSnapshots set.Set[uint64]

	height         uint64
	modifiedHeight bool
}

type consumerRecord struct {
	TopN    uint32 `serialize:"true"`
	Running bool   `serialize:"true"`
}

// New loads partial set security state from [db], or initializes empty state
// if [db] has never been written.
func New(db database.Database, log log.Logger) (State, error) {
	baseDB := versiondb.New(db)
	s := &state{
		log:         log,
		baseDB:      baseDB,
		consumersDB: prefixdb.New(ConsumersPrefix, baseDB),
		optedInDB:   prefixdb.New(OptedInPrefix, baseDB),
		historyDB:   prefixdb.New(HistoryPrefix, baseDB),
		singletonDB: prefixdb.New(SingletonPrefix, baseDB),

		consumers:         make(map[ids.ID]*consumerRecord),
		modifiedConsumers: set.NewSet[ids.ID](0),
		optedIn:           make(map[ids.ID]set.Set[ids.NodeID]),
		modifiedOptedIn:   make(map[ids.ID]map[ids.NodeID]bool),
		currentValidators: make(validators.Set),
		history:           make(map[uint64]validators.Set),
		addedSnapshots:    make(map[uint64]validators.Set),
		removedSnapshots:  set.NewSet[uint64](0),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.log.Info("loaded partial set security state",
		"height", s.height,
		"consumers", len(s.consumers),
		"snapshots", len(s.history),
	)
	return s, nil
}

func (s *state) load() error {
	height, err := database.GetUInt64(s.singletonDB, HeightKey)
	if err == nil {
		s.height = height
	} else if err != database.ErrNotFound {
		return err
	}

	currentBytes, err := s.singletonDB.Get(CurrentValidatorsKey)
	if err == nil {
		if s.currentValidators, err = unmarshalSnapshot(currentBytes); err != nil {
			return fmt.Errorf("failed to load current validators: %w", err)
		}
	} else if err != database.ErrNotFound {
		return err
	}

	if err := s.loadConsumers(); err != nil {
		return err
	}
	if err := s.loadOptedIn(); err != nil {
		return err
	}
	return s.loadHistory()
}

func (s *state) loadConsumers() error {
	it := s.consumersDB.NewIterator()
	defer it.Release()

	for it.Next() {
		consumerID, err := ids.ToID(it.Key())
		if err != nil {
			return err
		}
		record := &consumerRecord{}
		if _, err := Codec.Unmarshal(it.Value(), record); err != nil {
			return fmt.Errorf("failed to load consumer %s: %w", consumerID, err)
		}
		s.consumers[consumerID] = record
	}
	return it.Error()
}

func (s *state) loadOptedIn() error {
	it := s.optedInDB.NewIterator()
	defer it.Release()

	for it.Next() {
		key := consumerIDNodeID{}
		if err := key.Unmarshal(it.Key()); err != nil {
			return err
		}
		optedIn, ok := s.optedIn[key.consumerID]
		if !ok {
			optedIn = set.NewSet[ids.NodeID](1)
			s.optedIn[key.consumerID] = optedIn
		}
		optedIn.Add(key.nodeID)
	}
	return it.Error()
}

func (s *state) loadHistory() error {
	it := s.historyDB.NewIterator()
	defer it.Release()

	for it.Next() {
		height, err := unmarshalHeightKey(it.Key())
		if err != nil {
			return err
		}
		vdrs, err := unmarshalSnapshot(it.Value())
		if err != nil {
			return fmt.Errorf("failed to load power snapshot at height %d: %w", height, err)
		}
		s.history[height] = vdrs
	}
	return it.Error()
}

func (s *state) GetConsumerTopN(consumerID ids.ID) uint32 {
	record, ok := s.consumers[consumerID]
	if !ok {
		return 0
	}
	return record.TopN
}

func (s *state) SetConsumerTopN(consumerID ids.ID, n uint32) {
	record, ok := s.consumers[consumerID]
	if !ok {
		record = &consumerRecord{}
		s.consumers[consumerID] = record
	}
	record.TopN = n
	s.modifiedConsumers.Add(consumerID)
}

func (s *state) GetOptedIn(consumerID ids.ID) set.Set[ids.NodeID] {
	optedIn, ok := s.optedIn[consumerID]
	if !ok {
		return set.NewSet[ids.NodeID](0)
	}
	copied := set.NewSet[ids.NodeID](optedIn.Len())
	copied = copied.Union(optedIn)
	return copied
}

func (s *state) AddOptedIn(consumerID ids.ID, nodeID ids.NodeID) {
	optedIn, ok := s.optedIn[consumerID]
	if !ok {
		optedIn = set.NewSet[ids.NodeID](1)
		s.optedIn[consumerID] = optedIn
	}
	if optedIn.Contains(nodeID) {
		return
	}
	optedIn.Add(nodeID)
	s.markOptedInDiff(consumerID, nodeID, true)
}

func (s *state) RemoveOptedIn(consumerID ids.ID, nodeID ids.NodeID) {
	optedIn, ok := s.optedIn[consumerID]
	if !ok || !optedIn.Contains(nodeID) {
		return
	}
	optedIn.Remove(nodeID)
	s.markOptedInDiff(consumerID, nodeID, false)
}

func (s *state) markOptedInDiff(consumerID ids.ID, nodeID ids.NodeID, added bool) {
	diffs, ok := s.modifiedOptedIn[consumerID]
	if !ok {
		diffs = make(map[ids.NodeID]bool)
		s.modifiedOptedIn[consumerID] = diffs
	}
	diffs[nodeID] = added
}

func (s *state) IsConsumerRunning(consumerID ids.ID) bool {
	record, ok := s.consumers[consumerID]
	return ok && record.Running
}

func (s *state) SetConsumerRunning(consumerID ids.ID, running bool) {
	record, ok := s.consumers[consumerID]
	if !ok {
		record = &consumerRecord{}
		s.consumers[consumerID] = record
	}
	record.Running = running
	s.modifiedConsumers.Add(consumerID)
}

func (s *state) GetRunningConsumers() []ids.ID {
	running := make([]ids.ID, 0, len(s.consumers))
	for consumerID, record := range s.consumers {
		if record.Running {
			running = append(running, consumerID)
		}
	}
	slices.SortFunc(running, func(a, b ids.ID) int {
		return a.Compare(b)
	})
	return running
}

func (s *state) GetCurrentValidators() validators.Set {
	return s.currentValidators.Clone()
}

func (s *state) SetCurrentValidators(vdrs validators.Set) {
	s.currentValidators = vdrs.Clone()
	s.modifiedCurrentValidators = true
}

func (s *state) GetHeight() uint64 {
	return s.height
}

func (s *state) SetHeight(height uint64) {
	s.height = height
	s.modifiedHeight = true
}

func (s *state) AddPowerSnapshot(height uint64, vdrs validators.Set) {
	copied := vdrs.Clone()
	s.history[height] = copied
	s.addedSnapshots[height] = copied
	s.removedSnapshots.Remove(height)
}

func (s *state) GetPowerSnapshot(height uint64) (validators.Set, error) {
	vdrs, ok := s.history[height]
	if !ok {
		return nil, database.ErrNotFound
	}
	return vdrs.Clone(), nil
}

func (s *state) LatestPowerSnapshot() (validators.Set, uint64, bool) {
	var (
		latestHeight uint64
		found        bool
	)
	for height := range s.history {
		if !found || height > latestHeight {
			latestHeight = height
			found = true
		}
	}
	if !found {
		return nil, 0, false
	}
	return s.history[latestHeight].Clone(), latestHeight, true
}

func (s *state) PruneHistory(height uint64) {
	for recorded := range s.history {
		if recorded >= height {
			continue
		}
		delete(s.history, recorded)
		delete(s.addedSnapshots, recorded)
		s.removedSnapshots.Add(recorded)
	}
}

func (s *state) Commit() error {
	defer s.Abort()
	if err := s.write(); err != nil {
		return err
	}
	return s.baseDB.Commit()
}

func (s *state) Abort() {
	s.baseDB.Abort()
}

func (s *state) Close() error {
	return s.baseDB.Close()
}

func (s *state) write() error {
	if err := s.writeConsumers(); err != nil {
		return fmt.Errorf("failed to write consumers: %w", err)
	}
	if err := s.writeOptedInDiffs(); err != nil {
		return fmt.Errorf("failed to write opted-in diffs: %w", err)
	}
	if err := s.writeHistory(); err != nil {
		return fmt.Errorf("failed to write power history: %w", err)
	}
	return s.writeSingletons()
}

func (s *state) writeConsumers() error {
	for consumerID := range s.modifiedConsumers {
		recordBytes, err := Codec.Marshal(CodecVersion, s.consumers[consumerID])
		if err != nil {
			return err
		}
		if err := s.consumersDB.Put(consumerID[:], recordBytes); err != nil {
			return err
		}
	}
	s.modifiedConsumers.Clear()
	return nil
}

func (s *state) writeOptedInDiffs() error {
	for consumerID, diffs := range s.modifiedOptedIn {
		for nodeID, added := range diffs {
			key := consumerIDNodeID{
				consumerID: consumerID,
				nodeID:     nodeID,
			}
			keyBytes := key.Marshal()
			if added {
				if err := s.optedInDB.Put(keyBytes, nil); err != nil {
					return err
				}
			} else if err := s.optedInDB.Delete(keyBytes); err != nil {
				return err
			}
		}
		delete(s.modifiedOptedIn, consumerID)
	}
	return nil
}

func (s *state) writeHistory() error {
	for height, vdrs := range s.addedSnapshots {
		snapshotBytes, err := marshalSnapshot(vdrs)
		if err != nil {
			return err
		}
		if err := s.historyDB.Put(marshalHeightKey(height), snapshotBytes); err != nil {
			return err
		}
		delete(s.addedSnapshots, height)
	}
	for height := range s.removedSnapshots {
		if err := s.historyDB.Delete(marshalHeightKey(height)); err != nil {
			return err
		}
	}
	s.removedSnapshots.Clear()
	return nil
}

func (s *state) writeSingletons() error {
	if s.modifiedHeight {
		if err := database.PutUInt64(s.singletonDB, HeightKey, s.height); err != nil {
			return err
		}
		s.modifiedHeight = false
	}
	if s.modifiedCurrentValidators {
		currentBytes, err := marshalSnapshot(s.currentValidators)
		if err != nil {
			return err
		}
		if err := s.singletonDB.Put(CurrentValidatorsKey, currentBytes); err != nil {
			return err
		}
		s.modifiedCurrentValidators = false
	}
	return nil
}
