package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"batchedit/internal/batch"
	"batchedit/internal/storage"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Service        *batch.Service
	Files          *storage.FileStore
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

func NewApp(service *batch.Service, files *storage.FileStore, logger zerolog.Logger, maxUploadBytes int64) *App {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &App{
		Service:        service,
		Files:          files,
		Logger:         logger,
		MaxUploadBytes: maxUploadBytes,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"code": code, "message": message})
}
