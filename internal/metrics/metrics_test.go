package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Generations(t *testing.T) {
	c := New(func() int { return 2 })

	c.ObserveGeneration(OutcomeFinalized, 300*time.Millisecond)
	c.ObserveGeneration(OutcomeFinalized, time.Second)
	c.ObserveGeneration(OutcomeAborted, 10*time.Millisecond)
	c.AddChunks(5)
	c.AddChunks(0)
	c.AddTokens(10, 4)
	c.ObserveTitle(true)
	c.ObserveTitle(false)

	require.Equal(t, 2.0, testutil.ToFloat64(c.generations.WithLabelValues(OutcomeFinalized)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.generations.WithLabelValues(OutcomeAborted)))
	require.Equal(t, 5.0, testutil.ToFloat64(c.chunks))
	require.Equal(t, 10.0, testutil.ToFloat64(c.tokens.WithLabelValues("prompt")))
	require.Equal(t, 4.0, testutil.ToFloat64(c.tokens.WithLabelValues("completion")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.titles.WithLabelValues("error")))
}

func TestCollectors_Handler(t *testing.T) {
	c := New(func() int { return 3 })
	c.ObserveGeneration(OutcomeFailed, time.Second)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), `forkchat_generations_total{outcome="failed"} 1`)
	require.Contains(t, string(body), "forkchat_generations_in_flight 3")
}

func TestCollectors_NilSafe(t *testing.T) {
	var c *Collectors
	c.ObserveGeneration(OutcomeFinalized, time.Second)
	c.AddChunks(1)
	c.AddTokens(1, 1)
	c.ObserveTitle(true)
}

func TestTokenMetrics_FormatDisplay(t *testing.T) {
	tests := []struct {
		name string
		m    TokenMetrics
		want string
	}{
		{name: "empty", m: TokenMetrics{}, want: "-"},
		{name: "small", m: TokenMetrics{PromptTokens: 120, CompletionTokens: 40}, want: "120 in / 40 out"},
		{name: "thousands", m: TokenMetrics{PromptTokens: 12345, CompletionTokens: 999}, want: "12.3k in / 999 out"},
		{name: "estimated", m: TokenMetrics{PromptTokens: 1500, Estimated: true}, want: "~1.5k in / 0 out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.m.FormatDisplay())
		})
	}
}
