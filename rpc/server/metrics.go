package server

import (
	"fmt"
	"net/http"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

var (
	requestErrors  = metrics.NewCounter("dcb_server_request_errors_total")
	endureInFlight = metrics.NewCounter("dcb_server_endure_inflight")
)

func requestCounter(t common.MessageType) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dcb_server_requests_total{type=%q}`, t.String()))
}

func requestDuration(t common.MessageType) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`dcb_server_request_duration_seconds{type=%q}`, t.String()))
}

// metricsHandler serves all metrics in the Prometheus text format
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}
