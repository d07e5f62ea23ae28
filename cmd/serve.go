package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/verify", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				MapsURL string `json:"mapsUrl"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.MapsURL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mapsUrl is required"})
				return
			}

			outcome := env.Orchestrator.Run(req.Context(), body.MapsURL)
			if outcome.Status == model.StatusFailed {
				writeJSON(w, http.StatusOK, map[string]any{
					"analysis_session_id": outcome.SessionID,
					"verification_status": outcome.Status,
					"reason":              outcome.Reason,
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"v2":      true,
				"results": outcome.Record.V2,
			})
		})

		r.Post("/api/bulk", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				DriveURL  string `json:"driveUrl"`
				SourceDir string `json:"sourceDir"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			sourceURL := body.SourceDir
			dir := body.SourceDir
			if body.DriveURL != "" {
				// Drive folders are mirrored locally under the configured
				// source root, keyed by folder id.
				folderID, err := pipeline.ExtractFolderID(body.DriveURL)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "driveUrl has no folder id"})
					return
				}
				sourceURL = body.DriveURL
				dir = filepath.Join(cfg.Bulk.LocalSourceDir, folderID)
			}
			if dir == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "driveUrl or sourceDir is required"})
				return
			}

			run, err := env.BulkRunner.Run(req.Context(), sourceURL, pipeline.LocalDirSource{Dir: dir})
			if err != nil {
				zap.L().Error("bulk run failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"success": false,
					"error":   "bulk analysis failed",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success":         true,
				"total_processed": run.TotalProcessed,
				"results":         run.Results,
			})
		})

		r.Get("/api/records/{sessionID}", func(w http.ResponseWriter, req *http.Request) {
			rec, err := env.Store.GetRecord(req.Context(), chi.URLParam(req, "sessionID"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"session_id":     rec.SessionID,
				"schema_version": rec.Version,
				"created_at":     rec.CreatedAt,
				"v2":             rec.V2,
				"v1":             rec.V1,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// The signal context is already cancelled; give in-flight
			// requests their own window to drain.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
