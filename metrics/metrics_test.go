package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/warp/tontine-engine/generic"
	"github.com/warp/tontine-engine/metrics"
	"github.com/warp/tontine-engine/tontine"
)

func TestCollector_CountsOutcomes(t *testing.T) {
	c := metrics.NewCollector()
	applied := metrics.OperationsTotal.WithLabelValues("deposit_contribution", "applied")
	rejected := metrics.OperationsTotal.WithLabelValues("deposit_contribution", "member_already_contributed")
	internal := metrics.OperationsTotal.WithLabelValues("deposit_contribution", "internal")

	beforeApplied := testutil.ToFloat64(applied)
	beforeRejected := testutil.ToFloat64(rejected)
	beforeInternal := testutil.ToFloat64(internal)

	c.OperationApplied(tontine.ActionDepositContribution, tontine.EffectApplied)
	c.OperationApplied(tontine.ActionDepositContribution, tontine.EffectApplied)
	c.OperationRejected(tontine.ActionDepositContribution, tontine.CodeMemberAlreadyContributed)
	c.OperationRejected(tontine.ActionDepositContribution, "")

	assert.Equal(t, beforeApplied+2, testutil.ToFloat64(applied))
	assert.Equal(t, beforeRejected+1, testutil.ToFloat64(rejected))
	assert.Equal(t, beforeInternal+1, testutil.ToFloat64(internal))
}

func TestCollector_Distributed(t *testing.T) {
	c := metrics.NewCollector()
	beforeAmount := testutil.ToFloat64(metrics.DistributedAmountTotal)
	beforeFees := testutil.ToFloat64(metrics.FeesRetainedTotal)

	c.Distributed(tontine.Distribution{Round: 1, Amount: generic.NewAmount(990), Fees: generic.NewAmount(10)})

	assert.Equal(t, beforeAmount+990, testutil.ToFloat64(metrics.DistributedAmountTotal))
	assert.Equal(t, beforeFees+10, testutil.ToFloat64(metrics.FeesRetainedTotal))
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/api/rounds/{n}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/rounds/{n}", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/api/rounds/1", "/api/rounds/7"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
