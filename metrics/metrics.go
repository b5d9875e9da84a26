// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"

	"github.com/luxfi/metric"
)

var _ Metrics = (*metricsImpl)(nil)

type Metrics interface {
	// Mark that a validator opted in to a consumer.
	IncOptIns()
	// Mark that a validator opted out of a consumer.
	IncOptOuts()
	// Mark that an opt-out was rejected.
	IncRejectedOptOuts()
	// Mark that end-of-block reconciliation force-opted this many validators
	// in.
	AddReconciledValidators(int)
	// Mark that a top-N selection was computed.
	IncSelectionsComputed()
	// Mark that a top-N selection was served from cache.
	IncSelectionsCached()
}

func New(registerer metric.Registerer) (Metrics, error) {
	m := &metricsImpl{
		optIns: metric.NewCounter(metric.CounterOpts{
			Name: "opt_ins",
			Help: "Total number of successful validator opt-ins",
		}),
		optOuts: metric.NewCounter(metric.CounterOpts{
			Name: "opt_outs",
			Help: "Total number of successful validator opt-outs",
		}),
		rejectedOptOuts: metric.NewCounter(metric.CounterOpts{
			Name: "rejected_opt_outs",
			Help: "Total number of rejected validator opt-outs",
		}),
		reconciledValidators: metric.NewCounter(metric.CounterOpts{
			Name: "reconciled_validators",
			Help: "Total number of validators force-opted in at end of block",
		}),
		selectionsComputed: metric.NewCounter(metric.CounterOpts{
			Name: "selections_computed",
			Help: "Total number of top-N selections computed",
		}),
		selectionsCached: metric.NewCounter(metric.CounterOpts{
			Name: "selections_cached",
			Help: "Total number of top-N selections served from cache",
		}),
	}

	err := errors.Join(
		registerer.Register(metric.AsCollector(m.optIns)),
		registerer.Register(metric.AsCollector(m.optOuts)),
		registerer.Register(metric.AsCollector(m.rejectedOptOuts)),
		registerer.Register(metric.AsCollector(m.reconciledValidators)),
		registerer.Register(metric.AsCollector(m.selectionsComputed)),
		registerer.Register(metric.AsCollector(m.selectionsCached)),
	)
	return m, err
}

type metricsImpl struct {
	optIns               metric.Counter
	optOuts              metric.Counter
	rejectedOptOuts      metric.Counter
	reconciledValidators metric.Counter
	selectionsComputed   metric.Counter
	selectionsCached     metric.Counter
}

func (m *metricsImpl) IncOptIns() {
	m.optIns.Inc()
}

func (m *metricsImpl) IncOptOuts() {
	m.optOuts.Inc()
}

func (m *metricsImpl) IncRejectedOptOuts() {
	m.rejectedOptOuts.Inc()
}

func (m *metricsImpl) AddReconciledValidators(count int) {
	m.reconciledValidators.Add(float64(count))
}

func (m *metricsImpl) IncSelectionsComputed() {
	m.selectionsComputed.Inc()
}

func (m *metricsImpl) IncSelectionsCached() {
	m.selectionsCached.Inc()
}

// Noop discards every observation. Used when the caller has no registry.
var Noop Metrics = noopMetrics{}

type noopMetrics struct{}

func (noopMetrics) IncOptIns()                  {}
func (noopMetrics) IncOptOuts()                 {}
func (noopMetrics) IncRejectedOptOuts()         {}
func (noopMetrics) AddReconciledValidators(int) {}
func (noopMetrics) IncSelectionsComputed()      {}
func (noopMetrics) IncSelectionsCached()        {}
