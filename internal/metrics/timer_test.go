package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/reconnode/internal/metrics"
	"github.com/anstrom/reconnode/internal/metrics/mocks"
)

func TestTimer_RecordsIntoRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockMetricsRegistry(ctrl)

	labels := metrics.Labels{metrics.LabelJobType: "scan_task"}
	registry.EXPECT().
		Histogram(metrics.MetricJobDuration, gomock.Any(), labels).
		Times(1)

	timer := metrics.NewTimerFor(registry, metrics.MetricJobDuration, labels)
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Stop(), time.Duration(0))
}
