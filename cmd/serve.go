package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kgas-labs/kgas/internal/provenance"
	"github.com/kgas-labs/kgas/internal/resilience"
	"github.com/kgas-labs/kgas/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API over lineage and quality",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/v1/lineage/{ref}", func(w http.ResponseWriter, req *http.Request) {
			direction := req.URL.Query().Get("direction")
			if direction == "" {
				direction = provenance.DirectionBackward
			}
			recs, err := env.Tracker.Lineage(req.Context(), chi.URLParam(req, "ref"), direction, 0)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, recs)
		})

		r.Get("/v1/lineage/{ref}/graph", func(w http.ResponseWriter, req *http.Request) {
			graph, err := env.Tracker.ExportGraph(req.Context(), chi.URLParam(req, "ref"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, graph)
		})

		r.Get("/v1/quality/{ref}", func(w http.ResponseWriter, req *http.Request) {
			qa, err := env.Assessor.Assess(req.Context(), chi.URLParam(req, "ref"), req.URL.Query().Get("method"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, qa)
		})

		r.Post("/v1/quality/report", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Refs []string `json:"refs"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Refs) == 0 {
				http.Error(w, `{"error":"refs is required"}`, http.StatusBadRequest)
				return
			}
			report, err := env.Assessor.Report(req.Context(), body.Refs)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, report)
		})

		r.Get("/v1/deadletter", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, env.DLQ.List(resilience.DLQFilter{
				ErrorType: req.URL.Query().Get("error_type"),
			}))
		})

		r.Get("/v1/operations", func(w http.ResponseWriter, req *http.Request) {
			recs, err := env.Tracker.QueryOperations(req.Context(), store.OperationFilter{
				ToolID: req.URL.Query().Get("tool"),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, recs)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if eris.Is(err, provenance.ErrInvalidArgument) {
		status = http.StatusBadRequest
	} else if eris.Is(err, provenance.ErrNotFound) {
		status = http.StatusNotFound
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
