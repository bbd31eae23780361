package api

import (
	"encoding/json"
	"net/http"

	"github.com/heysubinoy/asyncstore/internal/store"
)

// MetricsHandler returns current store metrics as JSON.
func MetricsHandler(instrumentedStore *store.InstrumentedStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		metrics := instrumentedStore.GetMetrics()

		operations := make(map[string]uint64, len(metrics.Ops))
		errs := make(map[string]uint64, len(metrics.Ops))
		latency := make(map[string]string, len(metrics.Ops))
		for name, op := range metrics.Ops {
			operations[name] = op.Count
			errs[name] = op.Errors
			latency[name] = op.AvgLatency.String()
		}

		response := map[string]interface{}{
			"operations":  operations,
			"errors":      errs,
			"avg_latency": latency,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// RegisterMetrics mounts MetricsHandler at /metrics.
func RegisterMetrics(instrumentedStore *store.InstrumentedStore) func(*http.ServeMux) {
	return func(mux *http.ServeMux) {
		mux.HandleFunc("/metrics", MetricsHandler(instrumentedStore))
	}
}
