package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(EventsPublished.WithLabelValues("DeviceCreated"))
	EventsPublished.WithLabelValues("DeviceCreated").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(EventsPublished.WithLabelValues("DeviceCreated")))
}

func TestStartPrometheusServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	Requests.WithLabelValues("create", "201").Inc()
	StartPrometheusServer(ctx, &wg, &PromServerOpts{
		Logger: zap.NewNop(),
		Addr:   "127.0.0.1:19100",
	})

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:19100/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.True(t, strings.Contains(body, `inventory_requests_total{op="create",status="201"}`))

	cancel()
	wg.Wait()
}
