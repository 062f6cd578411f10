package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/config"
	"github.com/sells-group/proposal-cli/internal/model"
	"github.com/sells-group/proposal-cli/internal/pipeline"
	"github.com/sells-group/proposal-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proposal generation API server",
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

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Pipeline, env.Store, env.Resolver, &cfg.Server),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// proposalRunner is the pipeline surface the HTTP handlers need. The serve
// tests substitute a scripted runner.
type proposalRunner interface {
	Stream(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// configResolver resolves a tenant's pipeline configuration.
type configResolver interface {
	Resolve(ctx context.Context, tenantID string) (*pipeline.Config, string)
}

// buildRouter assembles the HTTP API.
func buildRouter(p proposalRunner, st store.Store, res configResolver, serverCfg *config.ServerConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	origins := []string{"*"}
	if serverCfg != nil && len(serverCfg.AllowedOrigins) > 0 {
		origins = serverCfg.AllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/proposal/stream", handleStream(p))
	r.Post("/proposal/generate", handleGenerate(p))
	r.Get("/proposal/health", handlePipelineHealth(res))
	r.Get("/proposal/runs", handleListRuns(st))
	r.Get("/proposal/runs/{id}", handleGetRun(st))

	return r
}

// handlePipelineHealth reports the effective pipeline configuration for a
// tenant: whether generation is enabled, which stages run, and where the
// configuration came from.
func handlePipelineHealth(res configResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id is required")
			return
		}

		cfg, source := res.Resolve(r.Context(), tenantID)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"pipeline_name":  cfg.PipelineName,
			"enabled":        cfg.IsEnabled(),
			"enabled_stages": cfg.EnabledStages(),
			"config_source":  source,
			"default_config": cfg.IsDefault,
		})
	}
}

// proposalRequest is the body of the stream and generate endpoints.
type proposalRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	MinuteID string `json:"minute_id"`
}

func decodeProposalRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body proposalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return pipeline.Request{}, false
	}
	if body.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return pipeline.Request{}, false
	}
	if body.MinuteID == "" {
		writeError(w, http.StatusBadRequest, "minute_id is required")
		return pipeline.Request{}, false
	}
	return pipeline.Request{
		TenantID: body.TenantID,
		UserID:   body.UserID,
		MinuteID: body.MinuteID,
	}, true
}

// handleStream runs the pipeline and relays its events as server-sent
// events, one data frame per event. A dropped client does not cancel the
// run; the event channel is drained to completion either way.
func handleStream(p proposalRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeProposalRequest(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		clientGone := false
		for ev := range p.Stream(r.Context(), req) {
			if clientGone {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				zap.L().Error("marshal event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				zap.L().Info("client disconnected mid-stream",
					zap.String("minute_id", req.MinuteID),
				)
				clientGone = true
				continue
			}
			flusher.Flush()
		}
	}
}

func handleGenerate(p proposalRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeProposalRequest(w, r)
		if !ok {
			return
		}

		result, err := p.Generate(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case eris.Is(err, pipeline.ErrMinuteNotFound):
				status = http.StatusNotFound
			case eris.Is(err, pipeline.ErrPermissionDenied):
				status = http.StatusForbidden
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 50
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		offset := 0
		if s := q.Get("offset"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
				return
			}
			offset = n
		}

		runs, err := st.ListRuns(r.Context(), store.RunFilter{
			TenantID: q.Get("tenant_id"),
			MinuteID: q.Get("minute_id"),
			Status:   model.RunStatus(q.Get("status")),
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := st.GetRun(r.Context(), id)
		if err != nil {
			zap.L().Error("get run", zap.String("run_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		writeJSON(w, http.StatusOK, run)
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
