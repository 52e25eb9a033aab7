package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/warp/hoa-ledger/generic"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.PaymentRecorded(generic.SourceWaterBills, 80000)
	r.PaymentRecorded(generic.SourceWaterBills, 20000)
	r.PreviewComputed(generic.SourceHOADues)
	r.Compensation(generic.OutcomeRolledBack)
	r.BestEffortFailure("account_adjust")
	r.IntegrityViolation(generic.SourceWaterBills)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.paymentsRecorded.WithLabelValues("water_bills")))
	assert.Equal(t, 100000.0, testutil.ToFloat64(r.paymentCents.WithLabelValues("water_bills")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.previews.WithLabelValues("hoa_dues")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.compensations.WithLabelValues("rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.bestEffortFailures.WithLabelValues("account_adjust")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.integrityViolations.WithLabelValues("water_bills")))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 6, count)
}
