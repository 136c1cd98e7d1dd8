package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chat turn metrics
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_chat_turns_total",
			Help: "Total number of chat turns processed",
		},
		[]string{"intent"},
	)

	ChatTurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_chat_turn_duration_seconds",
			Help:    "End-to-end chat turn duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// Retrieval metrics
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_retrieval_stage_duration_seconds",
			Help:    "Duration of each retrieval stage in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"stage"},
	)

	RetrievalResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_retrieval_results",
			Help:    "Number of candidates returned per retrieval source",
			Buckets: []float64{0, 1, 2, 4, 8, 16},
		},
		[]string{"source"},
	)

	// Cache metrics, labeled by key namespace (emb, query, knowledge, memory, appt)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_cache_hits_total",
			Help: "Total cache hits by namespace",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_cache_misses_total",
			Help: "Total cache misses by namespace",
		},
		[]string{"namespace"},
	)

	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_cache_write_failures_total",
			Help: "Total best-effort cache writes that failed",
		},
		[]string{"namespace"},
	)

	// Embedding provider metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_embedding_requests_total",
			Help: "Total embedding provider requests by outcome",
		},
		[]string{"model", "status"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_embedding_duration_seconds",
			Help:    "Embedding provider call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"model"},
	)

	// Vector DB metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_vector_searches_total",
			Help: "Total vector DB searches by outcome",
		},
		[]string{"collection", "status"},
	)

	// Ingest metrics
	DocumentsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_documents_ingested_total",
			Help: "Total documents ingested into the knowledge base",
		},
	)

	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_chunks_ingested_total",
			Help: "Total chunks ingested into the knowledge base",
		},
	)

	// Appointment metrics
	AppointmentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_appointments_created_total",
			Help: "Total appointments created",
		},
	)

	AppointmentsRescheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_appointments_rescheduled_total",
			Help: "Total appointments rescheduled",
		},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "concierge_sessions_active",
			Help: "Number of sessions in the local cache",
		},
	)

	SessionWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_session_writes_total",
			Help: "Total session memory writes",
		},
	)

	// Intent classifier metrics
	IntentPredictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_intent_predictions_total",
			Help: "Total intent predictions by backend and outcome",
		},
		[]string{"backend", "labels"},
	)
)

// RecordEmbedding records one embedding provider call outcome.
func RecordEmbedding(model, status string, seconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		EmbeddingDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordVectorSearch records one vector DB search outcome.
func RecordVectorSearch(collection, status string, seconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	RetrievalDuration.WithLabelValues("dense").Observe(seconds)
}
