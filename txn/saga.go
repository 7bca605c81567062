// Package txn is the transactional coordinator (C7): it wraps a kv.Transaction
// with a SAGA ledger of compensating actions for effects that live outside
// the underlying key-value transaction (the graph mirror, the vector
// cache/ANN structure), and a session-scoped manager for transaction
// lifecycle, statistics, and timeout cleanup.
package txn

import (
	"github.com/sirupsen/logrus"
)

// sagaStep is one registered compensating action: a human-readable name,
// the inverse closure, and whether it has already run.
type sagaStep struct {
	name        string
	compensate  func() error
	compensated bool
}

// Saga is a transaction's ordered ledger of compensating actions. Steps are
// appended in execution order; Compensate walks them in reverse, invoking
// each uncompensated step's closure and tolerating individual failures so
// later steps still run.
type Saga struct {
	steps []*sagaStep
	log   *logrus.Logger
}

// NewSaga constructs an empty ledger. log may be nil, in which case
// compensation failures are silently swallowed (best-effort by design).
func NewSaga(log *logrus.Logger) *Saga {
	return &Saga{log: log}
}

// AddStep appends a compensating action, satisfying graph.SagaRegistrar and
// vector.SagaRegistrar.
func (s *Saga) AddStep(name string, compensate func() error) {
	s.steps = append(s.steps, &sagaStep{name: name, compensate: compensate})
}

// Compensate walks the ledger in reverse, running every uncompensated
// step's closure. A step's error is logged and does not stop the walk;
// calling Compensate twice is a no-op the second time (each step only runs
// once).
func (s *Saga) Compensate() {
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.compensated {
			continue
		}
		if err := step.compensate(); err != nil && s.log != nil {
			s.log.WithField("step", step.name).WithError(err).
				Warn("txn: saga compensation step failed, continuing")
		}
		step.compensated = true
	}
}

// Clear discards the ledger without running it, for the successful-commit
// path.
func (s *Saga) Clear() {
	s.steps = nil
}

// Len reports how many steps are currently registered, for diagnostics and
// tests.
func (s *Saga) Len() int {
	return len(s.steps)
}

// Pending reports whether any step has not yet been compensated.
func (s *Saga) Pending() bool {
	for _, step := range s.steps {
		if !step.compensated {
			return true
		}
	}
	return false
}
