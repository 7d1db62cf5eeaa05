package metrics

import (
	"testing"

	"TradeReview/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordReviewRequest("request", "accepted")
	r.RecordReviewRequest("request", "accepted")
	r.RecordCredit("refund", models.BucketBonus)
	r.RecordQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.reviewRequests.WithLabelValues("request", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.credits.WithLabelValues("refund", "bonus")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.queueDepth))
}
