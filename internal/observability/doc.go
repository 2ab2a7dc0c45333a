// Package observability provides logging and metrics support for the paper
// timeline service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithComponent(logger, "likes")
//
// Per-paper and per-load fields:
//
//	logger = observability.WithPaperContext(logger, string(p.ID), key)
//	logger = observability.WithLoadContext(logger, "manifest", manifestURL)
//
// # Metrics
//
//	metrics := observability.NewMetrics("paper_timeline")
//	metrics.RecordCorpusLoad("manifest", len(corpus), elapsed.Seconds(), err)
//	metrics.RecordLikeWrite("update", elapsed.Seconds(), err)
//
// Tests and embedded uses may register against a private registry with
// NewMetricsWith. A nil *Metrics records nothing.
//
// # Standard Fields
//
//   - component: owning subsystem (corpus, likes, timeline, http)
//   - paper_id: resolved paper identifier
//   - store_key: remote counter key (id or truncated title)
//   - source: corpus source kind
//   - error_kind: stable label for the failure taxonomy
//   - request_id, correlation_id: HTTP request tracing
package observability
