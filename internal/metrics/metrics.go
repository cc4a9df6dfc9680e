// Package metrics records stage durations through an injected sink.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Stage names recorded by upload and question turns.
const (
	StagePDFExtraction = "pdf_extraction"
	StageOCR           = "ocr_processing"
	StageEmbedding     = "embedding_generation"
	StageVectorLoad    = "vector_store_load"
	StageSimilarity    = "similarity_search"
	StageLLMInference  = "llm_inference"
	StageWebSearch     = "web_search"
	StageTotalUpload   = "total_upload"
	StageTotalQuestion = "total_question"
)

// Sink receives one observation per completed stage.
type Sink interface {
	Record(stage string, d time.Duration)
}

// Nop discards observations.
type Nop struct{}

func (Nop) Record(string, time.Duration) {}

// Multi fans observations out to several sinks.
type Multi []Sink

func (m Multi) Record(stage string, d time.Duration) {
	for _, s := range m {
		if s != nil {
			s.Record(stage, d)
		}
	}
}

// Logger writes each observation at debug level.
type Logger struct{}

func (Logger) Record(stage string, d time.Duration) {
	log.Debug().Str("stage", stage).Float64("ms", Millis(d)).Msg("Stage finished")
}

// Timings collects one invocation's stage durations in milliseconds.
type Timings struct {
	mu sync.Mutex
	ms map[string]float64
}

func NewTimings() *Timings {
	return &Timings{ms: map[string]float64{}}
}

func (t *Timings) Record(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ms[stage+"_ms"] += Millis(d)
}

// Map returns a copy of the recorded timings.
func (t *Timings) Map() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.ms))
	for k, v := range t.ms {
		out[k] = v
	}
	return out
}

// StageSummary aggregates every observation of one stage.
type StageSummary struct {
	Count int     `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
}

// Collector aggregates observations across invocations. It is safe for
// concurrent use.
type Collector struct {
	mu     sync.Mutex
	stages map[string]*aggregate
}

type aggregate struct {
	count         int
	sum, min, max float64
}

func NewCollector() *Collector {
	return &Collector{stages: map[string]*aggregate{}}
}

func (c *Collector) Record(stage string, d time.Duration) {
	ms := Millis(d)
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.stages[stage]
	if !ok {
		c.stages[stage] = &aggregate{count: 1, sum: ms, min: ms, max: ms}
		return
	}
	a.count++
	a.sum += ms
	a.min = min(a.min, ms)
	a.max = max(a.max, ms)
}

func (c *Collector) Summary() map[string]StageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]StageSummary, len(c.stages))
	for name, a := range c.stages {
		out[name] = StageSummary{
			Count: a.count,
			AvgMS: a.sum / float64(a.count),
			MinMS: a.min,
			MaxMS: a.max,
		}
	}
	return out
}

// Stages lists recorded stage names in sorted order.
func (c *Collector) Stages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.stages))
	for name := range c.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Measure returns a func that records the elapsed time when called:
//
//	defer metrics.Measure(sink, metrics.StageOCR)()
func Measure(sink Sink, stage string) func() {
	start := time.Now()
	return func() {
		if sink != nil {
			sink.Record(stage, time.Since(start))
		}
	}
}

func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
