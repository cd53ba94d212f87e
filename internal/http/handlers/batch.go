package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"batchedit/internal/batch"
	"batchedit/internal/domain"
	"batchedit/internal/middleware"
	"batchedit/pkg/zip"
)

// uploadField is the multipart form field carrying the selected images.
const uploadField = "images"

var invalidRequestMessages = map[string]string{
	"en": "Please select images and provide an editing prompt.",
	"id": "Pilih gambar dan berikan instruksi penyuntingan.",
}

type runRequest struct {
	Prompt string `json:"prompt"`
}

type itemResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	DisplayName  string `json:"display_name"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	HasPreview   bool   `json:"has_preview"`
	HasResult    bool   `json:"has_result"`
	ResultMIME   string `json:"result_mime,omitempty"`
}

type batchResponse struct {
	RunState    string         `json:"run_state"`
	LastOutcome string         `json:"last_outcome,omitempty"`
	GlobalError string         `json:"global_error,omitempty"`
	Items       []itemResponse `json:"items"`
}

// SelectFiles replaces the batch wholesale with the uploaded images.
func (a *App) SelectFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var files []batch.FileUpload
	for _, header := range r.MultipartForm.File[uploadField] {
		file, err := header.Open()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("cannot open %s", header.Filename))
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("cannot read %s", header.Filename))
			return
		}
		mime := header.Header.Get("Content-Type")
		if mime == "" || mime == "application/octet-stream" {
			mime = http.DetectContentType(data)
		}
		if len(mime) < 6 || mime[:6] != "image/" {
			a.Logger.Debug().Str("filename", header.Filename).Str("mime", mime).Msg("handlers: skipping non-image upload")
			continue
		}
		files = append(files, batch.FileUpload{Filename: header.Filename, MIME: mime, Data: data})
	}
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "no image files in upload")
		return
	}

	if err := a.Service.SelectFiles(r.Context(), files); err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.Batch(w, r)
}

// Batch returns the read-only batch snapshot.
func (a *App) Batch(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, toBatchResponse(a.Service.Snapshot()))
}

// StartRun begins processing the batch with the supplied prompt.
func (a *App) StartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Service.StartRun(req.Prompt); err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"run_state": string(domain.RunStateRunning)})
}

// Stop raises the cooperative stop signal. Always accepted; stopping an idle
// batch is a no-op.
func (a *App) Stop(w http.ResponseWriter, r *http.Request) {
	a.Service.RequestStop()
	a.json(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// Redo resets one completed or error item back to pending.
func (a *App) Redo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Service.RedoItem(id); err != nil {
		a.serviceError(w, r, err)
		return
	}
	item, ok := a.Service.Item(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "item not found")
		return
	}
	a.json(w, http.StatusOK, toItemResponse(item))
}

// Clear empties the batch.
func (a *App) Clear(w http.ResponseWriter, r *http.Request) {
	if err := a.Service.ClearBatch(); err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview serves the stored thumbnail of an item's source image.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	item, ok := a.Service.Item(chi.URLParam(r, "id"))
	if !ok || item.PreviewKey == "" {
		a.error(w, http.StatusNotFound, "not_found", "preview not available")
		return
	}
	data, err := a.Files.Read(r.Context(), item.PreviewKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("item_id", item.ID).Msg("handlers: preview read failed")
		a.error(w, http.StatusNotFound, "not_found", "preview not available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

// Result serves the edited image of a completed item as a download.
func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	item, ok := a.Service.Item(chi.URLParam(r, "id"))
	if !ok || item.Result == nil {
		a.error(w, http.StatusNotFound, "not_found", "result not available")
		return
	}
	w.Header().Set("Content-Type", item.Result.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "edited-"+item.Filename))
	_, _ = w.Write(item.Result.Data)
}

// Download serves a zip archive of every completed item's edited image.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	var assets []zip.Asset
	for _, item := range a.Service.Snapshot().Items {
		if item.Status != domain.StatusCompleted || item.Result == nil {
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: "edited-" + item.Filename,
			MIME:     item.Result.MIME,
			Data:     item.Result.Data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no completed items to download")
		return
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="edited-images.zip"`)
	_, _ = w.Write(archive)
}

func (a *App) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		locale := middleware.LocaleFromContext(r.Context())
		msg, ok := invalidRequestMessages[locale]
		if !ok {
			msg = invalidRequestMessages["en"]
		}
		a.error(w, http.StatusBadRequest, "invalid_request", msg)
	case errors.Is(err, domain.ErrRunActive):
		a.error(w, http.StatusConflict, "run_active", "a run is already in progress")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "item not found")
	default:
		a.Logger.Error().Err(err).Msg("handlers: unexpected service error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func toBatchResponse(status batch.Status) batchResponse {
	items := make([]itemResponse, len(status.Items))
	for i, item := range status.Items {
		items[i] = toItemResponse(item)
	}
	return batchResponse{
		RunState:    string(status.RunState),
		LastOutcome: string(status.LastOutcome),
		GlobalError: status.GlobalError,
		Items:       items,
	}
}

func toItemResponse(item domain.WorkItem) itemResponse {
	out := itemResponse{
		ID:           item.ID,
		Filename:     item.Filename,
		DisplayName:  item.DisplayName,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
		HasPreview:   item.PreviewKey != "",
		HasResult:    item.Result != nil,
	}
	if item.Result != nil {
		out.ResultMIME = item.Result.MIME
	}
	return out
}
