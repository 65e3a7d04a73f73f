package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nfe-extract/internal/model"
	"github.com/sells-group/nfe-extract/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the invoice upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctrl, err := buildController(cfg)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctrl, st, cfg.Server.MaxUploadMB, cfg.Server.CORSOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := shutdownServer(srv, shutdownTimeout); err != nil {
				zap.L().Warn("server shutdown incomplete", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownTimeout bounds how long in-flight uploads may run after a signal.
const shutdownTimeout = 30 * time.Second

// shutdownServer stops srv, waiting up to timeout for active requests.
func shutdownServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the HTTP routes. st may be nil, in which case uploads
// are not persisted and the /runs routes are not mounted.
func buildRouter(r resolver, st store.Store, maxUploadMB int64, origins []string) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Post("/upload", uploadHandler(r, st, maxUploadMB<<20))

	if st != nil {
		router.Get("/runs", listRunsHandler(st))
		router.Get("/runs/{id}", getRunHandler(st))
	}

	return router
}

func uploadHandler(r resolver, st store.Store, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if maxBytes > 0 {
			req.Body = http.MaxBytesReader(w, req.Body, maxBytes)
		}

		file, header, err := req.FormFile("file")
		if err != nil || header.Filename == "" {
			writeError(w, http.StatusBadRequest, "Nome de arquivo inválido")
			return
		}
		defer file.Close() //nolint:errcheck

		path, err := saveUpload(file, header.Filename)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Erro no processamento: "+err.Error())
			return
		}
		defer os.Remove(path) //nolint:errcheck

		log := zap.L().With(
			zap.String("file", header.Filename),
			zap.String("request_id", middleware.GetReqID(req.Context())),
		)

		run, err := extractDocument(req.Context(), r, path, header.Filename)
		if st != nil {
			if sErr := st.SaveRun(req.Context(), &run); sErr != nil {
				log.Warn("failed to save run", zap.Error(sErr))
			}
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Erro no processamento: "+err.Error())
			return
		}

		log.Info("upload processed", zap.String("method", run.Method), zap.Float64("completeness", run.Completeness))
		writeJSON(w, http.StatusOK, responseBody(run))
	}
}

// saveUpload copies src to a temp file that keeps the extension of name.
func saveUpload(src io.Reader, name string) (string, error) {
	tmp, err := os.CreateTemp("", "nfe-upload-*"+filepath.Ext(name))
	if err != nil {
		return "", eris.Wrap(err, "upload: create temp file")
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "upload: write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", eris.Wrap(err, "upload: close temp file")
	}
	return tmp.Name(), nil
}

func listRunsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.RunFilter{Method: q.Get("method")}
		if v := q.Get("failed"); v != "" {
			failed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid failed parameter")
				return
			}
			filter.Failed = &failed
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit parameter")
				return
			}
			filter.Limit = n
		}

		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		if runs == nil {
			runs = []model.ExtractionRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func getRunHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load run")
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
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}
