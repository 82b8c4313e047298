package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/stornet-labs/ledger/core"
	"github.com/stornet-labs/ledger/metrics"
)

// New assembles the API router over the ledger. accessLog receives combined
// access log lines; pass nil to disable request logging.
func New(ledger *core.Ledger, enableMetrics bool, accessLog io.Writer) http.Handler {
	router := mux.NewRouter()
	NewGovernance(ledger).Mount(router, "/governance")
	NewStaking(ledger).Mount(router, "/staking")
	NewAccounts(ledger).Mount(router, "/accounts")
	if enableMetrics {
		router.Path("/metrics").Handler(metrics.HTTPHandler())
	}

	var h http.Handler = router
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	h = handlers.RecoveryHandler()(h)
	h = requestDuration(h)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		h.ServeHTTP(w, req)
	})
}

func requestDuration(next http.Handler) http.Handler {
	hist := metrics.Histogram("http_request_duration_ms",
		[]float64{1, 5, 10, 50, 100, 500, 1000, 5000})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, req)
		hist.Observe(float64(time.Since(started).Milliseconds()))
	})
}
