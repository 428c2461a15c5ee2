package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/rcpanel/core/metrics"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestStartPromServerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, sink.RecordDispatch(coremetrics.DispatchEvent{Command: "Right", Outcome: "sent"}))

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartPromServerFor(ctx, addr, reg) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, `rcpanel_dispatch_total{command="Right",outcome="sent"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewSinkSelection(t *testing.T) {
	s, err := NewWithRegistry(coremetrics.Config{}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)

	s, err = NewWithRegistry(coremetrics.Config{PrometheusEnabled: true}, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &PromSink{}, s)

	_, err = NewWithRegistry(coremetrics.Config{InfluxEnabled: true}, prometheus.NewRegistry())
	assert.Error(t, err)
}
