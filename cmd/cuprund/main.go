// cuprund is the cup run valuation daemon. It watches the desk configuration
// file, recomputes the valuation when it changes, and serves the results over
// HTTP and WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/phenomenon0/cuprun/pkg/desk/config"
	"github.com/phenomenon0/cuprun/pkg/desk/metrics"
	"github.com/phenomenon0/cuprun/pkg/desk/storage"
	"github.com/phenomenon0/cuprun/pkg/desk/streaming"
	"github.com/phenomenon0/cuprun/pkg/desk/watcher"
	"github.com/phenomenon0/cuprun/pkg/engine/analysis"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Flags
	configFile = flag.String("config", "cuprun.yaml", "Path to the desk configuration file")
	httpAddr   = flag.String("http", "", "HTTP server address (overrides daemon.listen)")
	dbPath     = flag.String("db", "", "Snapshot database path (overrides daemon.db_path)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting cup run valuation daemon")

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	desk, err := newDesk()
	if err != nil {
		log.Fatalf("Failed to initialize desk: %v", err)
	}

	desk.watch.OnReport(func(report *analysis.Report) {
		breakeven := "undefined"
		if report.BreakevenValid {
			breakeven = fmt.Sprintf("$%.2f", report.Breakeven.InexactFloat64())
		}
		log.Printf("[report] EV $%.2f, IRR %.2f%%/yr, final %.1f%%, breakeven %s",
			report.ExpectedValue.InexactFloat64(),
			report.ExpectedIRRPct,
			report.Ladder.FinalProb,
			breakeven)
	})

	// Start streaming hub and HTTP server
	go desk.hub.Run(ctx)
	go desk.startHTTP()

	// Start the configuration watcher
	if err := desk.watch.Start(ctx); err != nil {
		log.Fatalf("Failed to start watcher: %v", err)
	}

	log.Printf("Desk running (config=%s, http=%s)", *configFile, desk.listen)
	log.Printf("WebSocket streaming available at ws://%s/ws", desk.listen)
	log.Println("Press Ctrl+C to stop")

	// Wait for signal
	<-sigCh
	log.Println("Shutting down...")

	// Graceful shutdown
	desk.watch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := desk.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	cancel()

	if st := desk.watch.GetStatus(); st.Runs > 0 {
		log.Printf("Final stats: %d runs, last at %s", st.Runs, st.LastRun.Format(time.RFC3339))
	}
	desk.store.Close()
	log.Println("Goodbye!")
}

type valuationDesk struct {
	store   *storage.Store
	hub     *streaming.Hub
	watch   *watcher.Watcher
	metrics *metrics.EngineMetrics
	server  *http.Server
	listen  string
}

func newDesk() (*valuationDesk, error) {
	desk := &valuationDesk{
		metrics: metrics.Default(),
	}
	desk.hub = streaming.NewHub(desk.metrics)

	// Daemon settings come from the same file the watcher follows. A broken
	// file falls back to defaults; the watcher keeps retrying the valuation
	// side until the file is fixed.
	file, err := config.Load(*configFile)
	if err != nil {
		log.Printf("Warning: %v", err)
		log.Println("Daemon settings fall back to defaults until the file is fixed")
	}

	daemon := file.Daemon
	if *httpAddr != "" {
		daemon.Listen = *httpAddr
	}
	if *dbPath != "" {
		daemon.DBPath = *dbPath
	}
	desk.listen = daemon.Listen

	desk.store, err = storage.New(daemon.DBPath, daemon.SnapshotKeep)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	log.Printf("Snapshot store ready (keep %d)", daemon.SnapshotKeep)

	desk.watch = watcher.New(&watcher.Config{
		ConfigPath:   *configFile,
		PollInterval: daemon.PollInterval,
		RecomputeGap: daemon.RecomputeGap,
	}, analysis.New(nil), desk.store, desk.hub, desk.metrics)

	desk.server = &http.Server{
		Addr:         desk.listen,
		Handler:      desk.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return desk, nil
}

func (d *valuationDesk) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", d.instrument("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}))

	mux.HandleFunc("/status", d.instrument("/status", d.handleStatus))
	mux.HandleFunc("/report", d.instrument("/report", d.handleReport))
	mux.HandleFunc("/scenarios", d.instrument("/scenarios", d.handleScenarios))
	mux.HandleFunc("/ladder", d.instrument("/ladder", d.handleLadder))
	mux.HandleFunc("/sweep", d.instrument("/sweep", d.handleSweep))
	mux.HandleFunc("/snapshots", d.instrument("/snapshots", d.handleSnapshots))
	mux.HandleFunc("/config", d.instrument("/config", d.handleConfig))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))

	// WebSocket streaming endpoint
	mux.HandleFunc("/ws", d.hub.ServeWS)

	return mux
}

func (d *valuationDesk) startHTTP() {
	log.Printf("HTTP server listening on %s", d.listen)
	if err := d.server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

type deskStatus struct {
	*watcher.Status
	StreamClients int `json:"stream_clients"`
}

func (d *valuationDesk) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, deskStatus{
		Status:        d.watch.GetStatus(),
		StreamClients: d.hub.ClientCount(),
	})
}

func (d *valuationDesk) handleReport(w http.ResponseWriter, r *http.Request) {
	report := d.watch.CurrentReport()
	if report == nil {
		httpError(w, http.StatusServiceUnavailable, "no report yet")
		return
	}
	writeJSON(w, report)
}

func (d *valuationDesk) handleScenarios(w http.ResponseWriter, r *http.Request) {
	report := d.watch.CurrentReport()
	if report == nil {
		httpError(w, http.StatusServiceUnavailable, "no report yet")
		return
	}
	writeJSON(w, report.Scenarios)
}

func (d *valuationDesk) handleLadder(w http.ResponseWriter, r *http.Request) {
	report := d.watch.CurrentReport()
	if report == nil {
		httpError(w, http.StatusServiceUnavailable, "no report yet")
		return
	}
	writeJSON(w, report.Ladder)
}

func (d *valuationDesk) handleConfig(w http.ResponseWriter, r *http.Request) {
	file := d.watch.CurrentFile()
	if file == nil {
		httpError(w, http.StatusServiceUnavailable, "configuration not loaded yet")
		return
	}
	writeJSON(w, file)
}

func (d *valuationDesk) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	snaps, err := d.store.ListSnapshots(limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, snaps)
}

// handleSweep serves the current sensitivity table, or reprices it over a
// custom span given start, end, and points query parameters.
func (d *valuationDesk) handleSweep(w http.ResponseWriter, r *http.Request) {
	report := d.watch.CurrentReport()
	if report == nil {
		httpError(w, http.StatusServiceUnavailable, "no report yet")
		return
	}

	q := r.URL.Query()
	if q.Get("start") == "" && q.Get("end") == "" && q.Get("points") == "" {
		writeJSON(w, report.Sensitivity)
		return
	}

	in := d.watch.CurrentInputs()
	sweep := analysis.DefaultSweep(in.Config.ResalePrice)
	if s := q.Get("start"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid start")
			return
		}
		sweep.Start = decimal.NewFromFloat(v)
	}
	if s := q.Get("end"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid end")
			return
		}
		sweep.End = decimal.NewFromFloat(v)
	}
	if s := q.Get("points"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, "invalid points")
			return
		}
		sweep.Points = n
	}
	if sweep.End.LessThan(sweep.Start) {
		httpError(w, http.StatusBadRequest, "end below start")
		return
	}
	in.Sweep = &sweep

	// A fresh analyzer keeps the watcher's memoized report intact.
	custom, err := analysis.New(nil).Analyze(in)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, custom.Sensitivity)
}

// instrument wraps a handler with request metrics.
func (d *valuationDesk) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		d.metrics.RecordHTTPRequest(endpoint, strconv.Itoa(rec.status), time.Since(start).Seconds())
	}
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
