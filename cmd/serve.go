package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/clarify"
	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/monitoring"
	"github.com/sells-group/contract-intel/internal/pipeline"
	"github.com/sells-group/contract-intel/internal/resilience"
	"github.com/sells-group/contract-intel/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// Background alert checks over the same store.
		collector := monitoring.NewCollector(env.Store)
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		go monitoring.NewChecker(collector, alerter, cfg.Monitoring).Run(ctx)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			gracefulShutdown(srv, shutdownTimeout)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

const shutdownTimeout = 10 * time.Second

// gracefulShutdown drains in-flight requests before the server exits. The
// signal context is already canceled by the time shutdown starts, so a fresh
// deadline is needed or Shutdown aborts immediately.
func gracefulShutdown(srv *http.Server, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

// newRouter builds the review API routes over the shared pipeline
// environment.
func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", handleStats(env))

	r.Route("/contracts", func(r chi.Router) {
		r.Post("/", handleIngest(env))
		r.Get("/", handleListContracts(env))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetContract(env))
			r.Get("/clarifications", handleListClarifications(env))
			r.Post("/clarifications/{field}", handleAnswer(env))
			r.Post("/apply", handleApply(env))
		})
	})

	return r
}

func handleStats(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		lookback := 0
		if v := req.URL.Query().Get("lookback_hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "lookback_hours must be a non-negative integer")
				return
			}
			lookback = n
		}

		snap, err := monitoring.NewCollector(env.Store).Collect(req.Context(), lookback)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "stats collection failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleIngest(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Path == "" {
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}

		out, err := env.Orchestrator.Ingest(req.Context(), body.Path)
		if err != nil {
			zap.L().Error("serve: ingest failed", zap.String("path", body.Path), zap.Error(err))
			writeError(w, http.StatusBadGateway, "ingestion failed")
			return
		}
		if err := pipeline.SaveOutcome(req.Context(), env.Store, out); err != nil {
			zap.L().Error("serve: persist failed", zap.String("id", out.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "persist failed")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":             out.ID,
			"status":         out.Status,
			"strategy":       out.Strategy,
			"degraded":       out.Degraded,
			"score":          out.Assessment.Score,
			"tier":           out.Assessment.Tier,
			"open_questions": out.Resolver().Pending(),
		})
	}
}

func handleListContracts(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recs, err := env.Store.ListContracts(req.Context(), store.ContractFilter{
			Status: req.URL.Query().Get("status"),
			Tier:   model.ConfidenceTier(req.URL.Query().Get("tier")),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleGetContract(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec, err := env.Store.GetContract(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "contract not found")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleListClarifications(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sess, err := loadReview(req.Context(), env.Store, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "contract not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state":     sess.Resolver.State(),
			"pending":   sess.Resolver.Pending(),
			"questions": sess.Resolver.Questions(),
		})
	}
}

func handleAnswer(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		field := chi.URLParam(req, "field")

		var body struct {
			Value any `json:"value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Value == nil {
			writeError(w, http.StatusBadRequest, "value is required")
			return
		}

		sess, err := loadReview(req.Context(), env.Store, id)
		if err != nil {
			writeError(w, http.StatusNotFound, "contract not found")
			return
		}

		if _, err := sess.answer(req.Context(), env.Store, field, body.Value); err != nil {
			writeError(w, answerStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"state":   sess.Resolver.State(),
			"pending": sess.Resolver.Pending(),
		})
	}
}

func handleApply(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		sess, err := loadReview(req.Context(), env.Store, chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "contract not found")
			return
		}

		merged, pending, err := sess.apply(req.Context(), env.Store)
		if err != nil {
			writeError(w, answerStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"pending": pending,
			"result":  merged,
		})
	}
}

// answerStatus maps answer-path failures to HTTP status codes. Validation
// problems and unknown fields are the caller's fault; a repeat answer is a
// conflict with the write-once rule.
func answerStatus(err error) int {
	var unknown *clarify.UnknownFieldError
	var repeat *clarify.AlreadyResolvedError
	var invalid *resilience.ValidationError
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &repeat):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
