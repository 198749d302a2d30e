package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickySink struct{}

func (panickySink) PutMetric(string, float64, Unit, Tags) { panic("boom") }

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSink) PutMetric(name string, _ float64, _ Unit, _ Tags) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func TestSafe_RecoversPanics(t *testing.T) {
	s := Safe(panickySink{})
	assert.NotPanics(t, func() {
		s.PutMetric("quote.latency", 12, Milliseconds, Tags{"network": "mainnet"})
	}, "Safe sink must never fail the caller")
}

func TestSafe_NilBecomesNop(t *testing.T) {
	s := Safe(nil)
	assert.NotPanics(t, func() { s.PutMetric("x", 1, Count, nil) })
}

func TestSafe_DoesNotDoubleWrap(t *testing.T) {
	s := Safe(&recordingSink{})
	assert.Equal(t, s, Safe(s))
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	Multi{a, b}.PutMetric("token.cache.hit", 1, Count, nil)

	assert.Equal(t, []string{"token.cache.hit"}, a.names)
	assert.Equal(t, []string{"token.cache.hit"}, b.names)
}

func TestPrometheus_RegistersAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "router")

	p.PutMetric("quote.batch.chunks", 3, Count, Tags{"network": "mainnet"})
	p.PutMetric("quote.batch.chunks", 1, Count, Tags{"network": "polygon"})

	count, err := testutil.GatherAndCount(reg, "router_quote_batch_chunks")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "Each network label set should be a separate series")
}

func TestPrometheus_ReusesAlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheus(reg, "router")
	second := NewPrometheus(reg, "router")

	first.PutMetric("gas.cache.hit", 1, Count, Tags{"network": "mainnet"})
	assert.NotPanics(t, func() {
		second.PutMetric("gas.cache.hit", 1, Count, Tags{"network": "mainnet"})
	})

	count, err := testutil.GatherAndCount(reg, "router_gas_cache_hit")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "token_cache_hit", sanitize("token.cache.hit"))
	assert.Equal(t, "_1x", sanitize("1x"))
	assert.Equal(t, "a_b_c", sanitize("A-b c"))
}
