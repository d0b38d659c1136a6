// Package metrics exposes generation counters for Prometheus and token usage
// formatting for the CLI.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeFinalized = "finalized"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// Collectors holds the chat core's Prometheus collectors on a private
// registry, so several instances can coexist in tests.
type Collectors struct {
	registry *prometheus.Registry

	generations *prometheus.CounterVec
	chunks      prometheus.Counter
	tokens      *prometheus.CounterVec
	duration    prometheus.Histogram
	titles      *prometheus.CounterVec
}

// New creates and registers the collectors. inFlight, if non-nil, backs a
// gauge of generations currently streaming.
func New(inFlight func() int) *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forkchat",
			Name:      "generations_total",
			Help:      "Assistant generations by outcome.",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "forkchat",
			Name:      "stream_chunks_total",
			Help:      "Streamed deltas received from models.",
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forkchat",
			Name:      "tokens_total",
			Help:      "Tokens reported by providers.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "forkchat",
			Name:      "generation_duration_seconds",
			Help:      "Time from model call to settled generation.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		titles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "forkchat",
			Name:      "titles_total",
			Help:      "Title generation attempts by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(c.generations, c.chunks, c.tokens, c.duration, c.titles)
	if inFlight != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "forkchat",
			Name:      "generations_in_flight",
			Help:      "Threads with a generation currently streaming.",
		}, func() float64 { return float64(inFlight()) }))
	}
	return c
}

// Registry returns the registry the collectors live on.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collectors in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveGeneration records a settled generation. Safe on a nil receiver.
func (c *Collectors) ObserveGeneration(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.generations.WithLabelValues(outcome).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// AddChunks counts streamed deltas.
func (c *Collectors) AddChunks(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.chunks.Add(float64(n))
}

// AddTokens counts provider-reported tokens.
func (c *Collectors) AddTokens(prompt, completion int) {
	if c == nil {
		return
	}
	if prompt > 0 {
		c.tokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		c.tokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// ObserveTitle records a title generation attempt.
func (c *Collectors) ObserveTitle(ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.titles.WithLabelValues(result).Inc()
}

// TokenMetrics is the token accounting of a single generation.
type TokenMetrics struct {
	PromptTokens     int
	CompletionTokens int

	// Estimated is set when PromptTokens came from the local tokenizer rather
	// than the provider.
	Estimated bool
}

// Total returns prompt plus completion tokens.
func (m TokenMetrics) Total() int {
	return m.PromptTokens + m.CompletionTokens
}

// FormatDisplay returns a compact summary such as "1.2k in / 340 out".
func (m TokenMetrics) FormatDisplay() string {
	if m.Total() == 0 {
		return "-"
	}
	in := formatCount(m.PromptTokens)
	if m.Estimated {
		in = "~" + in
	}
	return fmt.Sprintf("%s in / %s out", in, formatCount(m.CompletionTokens))
}

func formatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}
