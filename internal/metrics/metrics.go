// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alreadydone"

var (
	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "story_pipeline_runs_total",
			Help:      "Story pipeline runs partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "story_pipeline_duration_seconds",
			Help:      "Wall time of a story pipeline run.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	llmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Text generation requests partitioned by provider, model, and status.",
		},
		[]string{"provider", "model", "status"},
	)
	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Latency of successful text generation requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	llmTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the provider, split into prompt and completion.",
		},
		[]string{"provider", "model", "kind"},
	)

	ttsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_cache_lookups_total",
			Help:      "Narration audio cache lookups by result.",
		},
		[]string{"result"},
	)
	voiceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_requests_total",
			Help:      "Voice provider requests by operation and status.",
		},
		[]string{"operation", "status"},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminder pushes by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// PipelineRun records one finished pipeline run.
// Outcome is "done" or the abort reason.
func PipelineRun(outcome string, elapsed time.Duration) {
	pipelineRuns.WithLabelValues(outcome).Inc()
	pipelineDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// LLMRequest records one provider call.
func LLMRequest(provider, model, status string, elapsed time.Duration) {
	llmRequests.WithLabelValues(provider, model, status).Inc()
	if status == "success" {
		llmDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	}
}

// LLMTokens adds provider-reported token usage.
func LLMTokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		llmTokens.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokens.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}

// TTSCacheLookup records a cache hit or miss.
func TTSCacheLookup(hit bool) {
	if hit {
		ttsCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	ttsCacheLookups.WithLabelValues("miss").Inc()
}

// VoiceRequest records one call to the voice provider.
func VoiceRequest(operation, status string) {
	voiceRequests.WithLabelValues(operation, status).Inc()
}

// ReminderSent records one push attempt.
func ReminderSent(kind string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	remindersSent.WithLabelValues(kind, result).Inc()
}
