// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/pss/config"
	"github.com/luxfi/pss/metrics"
	"github.com/luxfi/pss/state"
	"github.com/luxfi/pss/validators"
)

// Backend carries the collaborators shared by every partial set security
// state transition. It holds no chain state of its own; all state flows
// through the state.Chain passed to each call.
type Backend struct {
	Config   *config.Config
	Log      log.Logger
	Metrics  metrics.Metrics
	Selector *Selector
}

func NewBackend(cfg *config.Config, log log.Logger, metrics metrics.Metrics) *Backend {
	return &Backend{
		Config:   cfg,
		Log:      log,
		Metrics:  metrics,
		Selector: NewSelector(cfg, metrics),
	}
}

// GetPSSValidatorSet returns the subset of [vdrs] authorized to secure
// [consumerID]: the full set restricted to the consumer's opted-in
// validators. A consumer nobody has opted in to yields an empty set.
func (b *Backend) GetPSSValidatorSet(chain state.Chain, vdrs validators.Set, consumerID ids.ID) validators.Set {
	return validators.Project(vdrs, chain.GetOptedIn(consumerID))
}

// GetCanonicalConsumerSet builds the deterministically ordered validator-set
// payload the packet relay announces to [consumerID], from the provider's
// live validator powers.
func (b *Backend) GetCanonicalConsumerSet(chain state.Chain, consumerID ids.ID) (validators.CanonicalSet, error) {
	projected := b.GetPSSValidatorSet(chain, chain.GetCurrentValidators(), consumerID)
	return validators.Flatten(projected)
}
