// Package server exposes the broker over HTTP for the dashboard: flow
// start and callback endpoints, per-provider status, and the settings
// document.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/bnema/modelgw/internal/application"
	"github.com/bnema/modelgw/internal/domain"
)

const maxSettingsBodyBytes = 1 << 20

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Broker *application.Broker
	Logger *slog.Logger
}

// NewMux builds the HTTP mux with the authorization flow, status,
// credential, and settings endpoints.
func NewMux(cfg MuxConfig) *http.ServeMux {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/{provider}/start", handleStart(cfg.Broker, cfg.Logger))
	mux.HandleFunc("GET /auth/{provider}/callback", handleCallback(cfg.Broker, cfg.Logger))
	mux.HandleFunc("GET /auth/{provider}/status", handleStatus(cfg.Broker, cfg.Logger))
	mux.HandleFunc("DELETE /auth/{provider}/disconnect", handleDisconnect(cfg.Broker, cfg.Logger))
	mux.HandleFunc("POST /auth/{provider}/key", handleSetKey(cfg.Broker, cfg.Logger))
	mux.HandleFunc("GET /settings", handleGetSettings(cfg.Broker, cfg.Logger))
	mux.HandleFunc("PUT /settings", handlePutSettings(cfg.Broker, cfg.Logger))

	return mux
}

func handleStart(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := pathProvider(w, r)
		if !ok {
			return
		}

		result, err := broker.StartLogin(r.Context(), provider)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownProvider) {
				writeJSONError(w, http.StatusNotFound, "unknown_provider", err.Error())
				return
			}
			logger.Error("start authorization flow", "provider", provider, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "start_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": result.URL})
	}
}

func handleCallback(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, err := domain.ParseProvider(r.PathValue("provider"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		q := r.URL.Query()
		result := broker.CompleteLogin(r.Context(), provider, application.CallbackParams{
			Code:             q.Get("code"),
			State:            q.Get("state"),
			ErrorCode:        q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		})

		if result.Outcome != application.OutcomeCompleted {
			logger.Warn("authorization callback did not complete",
				"provider", provider, "outcome", result.Outcome, "error", result.Err)
		}

		renderCallbackPage(w, result)
	}
}

func handleStatus(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := pathProvider(w, r)
		if !ok {
			return
		}

		status, err := broker.Status(r.Context(), provider)
		if err != nil {
			logger.Error("derive connection status", "provider", provider, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "status_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, status)
	}
}

func handleDisconnect(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := pathProvider(w, r)
		if !ok {
			return
		}

		if err := broker.Disconnect(r.Context(), provider); err != nil {
			logger.Error("disconnect provider", "provider", provider, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "disconnect_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func handleSetKey(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider, ok := pathProvider(w, r)
		if !ok {
			return
		}

		var body struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxSettingsBodyBytes)).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
			return
		}

		if err := broker.SetAPIKey(r.Context(), provider, body.APIKey); err != nil {
			logger.Error("store api key", "provider", provider, "error", err)
			writeJSONError(w, http.StatusBadRequest, "set_key_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func handleGetSettings(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := broker.Settings(r.Context())
		if err != nil {
			logger.Error("load settings document", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "settings_failed", err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

func handlePutSettings(broker *application.Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partial, err := io.ReadAll(io.LimitReader(r.Body, maxSettingsBodyBytes))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
			return
		}

		if err := broker.MergeSettings(r.Context(), partial); err != nil {
			logger.Error("merge settings document", "error", err)
			writeJSONError(w, http.StatusBadRequest, "merge_failed", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// pathProvider resolves the {provider} path segment. Unknown names get a
// JSON 404 and a false return.
func pathProvider(w http.ResponseWriter, r *http.Request) (domain.Provider, bool) {
	provider, err := domain.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown_provider", err.Error())
		return "", false
	}

	return provider, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
