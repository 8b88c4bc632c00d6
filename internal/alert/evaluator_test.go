package alert

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

var testPool = common.HexToAddress("0x1111111111111111111111111111111111111111")

func alertAt(target float64) model.PriceAlert {
	return model.PriceAlert{
		ID:     "a",
		Pool:   testPool,
		ChatID: 100,
		Target: decimal.NewFromFloat(target),
	}
}

func prime(e *Evaluator, price float64) {
	e.Evaluate(testPool, decimal.NewFromFloat(price), nil)
}

func TestEvaluatorFirstObservationOnlyPrimes(t *testing.T) {
	e := NewEvaluator()
	fired := e.Evaluate(testPool, decimal.NewFromFloat(100), []model.PriceAlert{alertAt(50)})
	require.Empty(t, fired)
}

func TestEvaluatorCrossingUp(t *testing.T) {
	e := NewEvaluator()
	prime(e, 99)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(101), []model.PriceAlert{alertAt(100)})
	require.Len(t, fired, 1)
}

func TestEvaluatorCrossingDown(t *testing.T) {
	e := NewEvaluator()
	prime(e, 101)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(99), []model.PriceAlert{alertAt(100)})
	require.Len(t, fired, 1)
}

func TestEvaluatorLandingOnTargetFires(t *testing.T) {
	e := NewEvaluator()
	prime(e, 99)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(100), []model.PriceAlert{alertAt(100)})
	require.Len(t, fired, 1)
}

func TestEvaluatorLeavingTargetDoesNotFire(t *testing.T) {
	e := NewEvaluator()
	prime(e, 100)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(150), []model.PriceAlert{alertAt(100)})
	require.Empty(t, fired)
}

func TestEvaluatorNoCrossingNoFire(t *testing.T) {
	e := NewEvaluator()
	prime(e, 90)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(95), []model.PriceAlert{alertAt(100)})
	require.Empty(t, fired)
}

func TestEvaluatorMultipleAlertsIndependent(t *testing.T) {
	e := NewEvaluator()
	prime(e, 90)

	below := alertAt(95)
	above := alertAt(200)
	fired := e.Evaluate(testPool, decimal.NewFromFloat(100), []model.PriceAlert{below, above})
	require.Len(t, fired, 1)
	require.True(t, fired[0].Target.Equal(below.Target))
}

func TestEvaluatorForgetReprimes(t *testing.T) {
	e := NewEvaluator()
	prime(e, 90)
	e.Forget(testPool)

	// After Forget, the next observation must not fire even across target.
	fired := e.Evaluate(testPool, decimal.NewFromFloat(110), []model.PriceAlert{alertAt(100)})
	require.Empty(t, fired)
}

func TestEvaluatorPoolsAreIsolated(t *testing.T) {
	e := NewEvaluator()
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	prime(e, 90)

	fired := e.Evaluate(other, decimal.NewFromFloat(110), []model.PriceAlert{alertAt(100)})
	require.Empty(t, fired)
}
