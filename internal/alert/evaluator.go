package alert

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// Evaluator decides when price alerts fire. It remembers the last seen
// price per pool; an alert triggers only when the price crosses its
// target between two observations, so sitting exactly on the target
// never fires and the very first observation of a pool only primes the
// state.
type Evaluator struct {
	mu   sync.Mutex
	last map[common.Address]decimal.Decimal
}

func NewEvaluator() *Evaluator {
	return &Evaluator{last: make(map[common.Address]decimal.Decimal)}
}

// Evaluate records the new price and returns the alerts it triggered.
// Triggered alerts are one-shot: the caller removes them from the active
// set before notifying.
func (e *Evaluator) Evaluate(pool common.Address, price decimal.Decimal, alerts []model.PriceAlert) []model.PriceAlert {
	e.mu.Lock()
	last, seen := e.last[pool]
	e.last[pool] = price
	e.mu.Unlock()

	if !seen {
		return nil
	}

	var fired []model.PriceAlert
	for _, a := range alerts {
		if crossed(a.Target, last, price) {
			fired = append(fired, a)
		}
	}
	return fired
}

// Forget drops the remembered price for a pool, e.g. when its
// subscription is torn down.
func (e *Evaluator) Forget(pool common.Address) {
	e.mu.Lock()
	delete(e.last, pool)
	e.mu.Unlock()
}

func crossed(target, last, current decimal.Decimal) bool {
	switch {
	case last.LessThan(target):
		return current.GreaterThanOrEqual(target)
	case last.GreaterThan(target):
		return current.LessThanOrEqual(target)
	default:
		// Last price was exactly on target: require a full crossing.
		return false
	}
}
