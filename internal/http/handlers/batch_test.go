package handlers_test

import (
	archivezip "archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"batchedit/internal/batch"
	"batchedit/internal/domain"
	"batchedit/internal/http/handlers"
	"batchedit/internal/http/httpapi"
	"batchedit/internal/infra"
	"batchedit/internal/preview"
	"batchedit/internal/storage"
)

type itemView struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	DisplayName  string `json:"display_name"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	HasPreview   bool   `json:"has_preview"`
	HasResult    bool   `json:"has_result"`
}

type batchView struct {
	RunState    string     `json:"run_state"`
	LastOutcome string     `json:"last_outcome"`
	GlobalError string     `json:"global_error"`
	Items       []itemView `json:"items"`
}

func newTestServer(t *testing.T, edit batch.EditFunc) (*httptest.Server, *batch.Service) {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	previewer := preview.NewRenderer(files, 64, zerolog.Nop())
	store := batch.NewStore(previewer.Release)
	service := batch.NewService(context.Background(), store, edit, previewer, zerolog.Nop())

	cfg := &infra.Config{
		DefaultLocale:   "en",
		RateLimitPerMin: 10000,
	}
	app := handlers.NewApp(service, files, zerolog.Nop(), 32<<20)
	server := httptest.NewServer(httpapi.NewRouter(app, cfg, zerolog.Nop()))
	t.Cleanup(server.Close)
	return server, service
}

func editSucceed(ctx context.Context, src domain.ImagePayload, prompt string) (domain.ImagePayload, error) {
	return domain.ImagePayload{Data: []byte("edited-bytes"), MIME: "image/png"}, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func uploadBody(t *testing.T, files map[string][]byte, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, data := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, mw.FormDataContentType()
}

func getBatch(t *testing.T, server *httptest.Server) batchView {
	t.Helper()
	resp, err := http.Get(server.URL + "/v1/batch")
	if err != nil {
		t.Fatalf("GET batch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET batch status = %d", resp.StatusCode)
	}
	var view batchView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return view
}

func postJSON(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, editSucceed)
	resp, err := http.Get(server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestBatchLifecycle(t *testing.T) {
	server, service := newTestServer(t, editSucceed)

	body, contentType := uploadBody(t, map[string][]byte{
		"beach-sunset.png": pngBytes(t),
		"city-night.png":   pngBytes(t),
	}, "image/png")
	resp, err := http.Post(server.URL+"/v1/batch", contentType, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	view := getBatch(t, server)
	if len(view.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(view.Items))
	}
	for _, item := range view.Items {
		if item.Status != "pending" {
			t.Fatalf("item %s status = %s", item.Filename, item.Status)
		}
		if !item.HasPreview {
			t.Fatalf("item %s has no preview", item.Filename)
		}
	}

	// Preview is served as a JPEG thumbnail.
	resp, err = http.Get(server.URL + "/v1/batch/items/" + view.Items[0].ID + "/preview")
	if err != nil {
		t.Fatalf("GET preview: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("preview status = %d, type = %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = postJSON(t, server.URL+"/v1/batch/run", `{"prompt":"add a birthday hat"}`, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	service.Wait()

	view = getBatch(t, server)
	if view.RunState != "idle" || view.LastOutcome != "completed" {
		t.Fatalf("run_state = %s, last_outcome = %s", view.RunState, view.LastOutcome)
	}
	for _, item := range view.Items {
		if item.Status != "completed" || !item.HasResult {
			t.Fatalf("item %s not completed: %#v", item.Filename, item)
		}
	}

	resp, err = http.Get(server.URL + "/v1/batch/items/" + view.Items[0].ID + "/result")
	if err != nil {
		t.Fatalf("GET result: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "edited-bytes" {
		t.Fatalf("result status = %d, body = %q", resp.StatusCode, data)
	}
	if disposition := resp.Header.Get("Content-Disposition"); !strings.Contains(disposition, "edited-"+view.Items[0].Filename) {
		t.Fatalf("disposition = %q", disposition)
	}

	resp, err = http.Get(server.URL + "/v1/batch/download")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	archive, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("download status = %d, type = %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	zr, err := archivezip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("archive entries = %d, want 2", len(zr.File))
	}

	resp = postJSON(t, server.URL+"/v1/batch/items/"+view.Items[1].ID+"/redo", "", nil)
	var redone itemView
	if err := json.NewDecoder(resp.Body).Decode(&redone); err != nil {
		t.Fatalf("decode redo: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || redone.Status != "pending" {
		t.Fatalf("redo status = %d, item = %#v", resp.StatusCode, redone)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/v1/batch", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE batch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	if view = getBatch(t, server); len(view.Items) != 0 {
		t.Fatalf("items remain after clear: %d", len(view.Items))
	}
}

func TestRunValidationIsLocalized(t *testing.T) {
	server, _ := newTestServer(t, editSucceed)

	header := http.Header{}
	header.Set("X-Locale", "id")
	resp := postJSON(t, server.URL+"/v1/batch/run", `{"prompt":"add hat"}`, header)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(payload["message"], "Pilih gambar") {
		t.Fatalf("message = %q, want Indonesian validation text", payload["message"])
	}

	view := getBatch(t, server)
	if view.GlobalError == "" {
		t.Fatal("global error not recorded in snapshot")
	}
}

func TestStopIsAcceptedWhenIdle(t *testing.T) {
	server, _ := newTestServer(t, editSucceed)
	resp := postJSON(t, server.URL+"/v1/batch/stop", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestRedoUnknownItem(t *testing.T) {
	server, _ := newTestServer(t, editSucceed)
	resp := postJSON(t, server.URL+"/v1/batch/items/missing/redo", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUploadRejectsNonImagePayload(t *testing.T) {
	server, _ := newTestServer(t, editSucceed)
	body, contentType := uploadBody(t, map[string][]byte{"notes.txt": []byte("plain text")}, "text/plain")
	resp, err := http.Post(server.URL+"/v1/batch", contentType, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
