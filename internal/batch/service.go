package batch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"batchedit/internal/domain"
)

// validationMessage is the global validation error shown when a run is
// requested without images or without a prompt. It is cleared on the next
// successful action.
const validationMessage = "Please select images and provide an editing prompt."

// FileUpload is one selected file handed in by the presentation layer.
type FileUpload struct {
	Filename string
	MIME     string
	Data     []byte
}

// Previewer renders and releases preview handles for source images.
// *preview.Renderer satisfies it.
type Previewer interface {
	Render(ctx context.Context, id string, src domain.ImagePayload) (string, error)
	Release(key string)
}

// Status is the read-only view of the batch handed to the presentation
// layer.
type Status struct {
	RunState    domain.RunState
	LastOutcome domain.RunOutcome
	GlobalError string
	Items       []domain.WorkItem
}

// Service is the caller-facing surface over the store and controller. It
// enforces the single-active-run rule: while a run is in progress the store
// is owned by the controller and every caller mutation is refused with
// domain.ErrRunActive.
type Service struct {
	store      *Store
	controller *Controller
	edit       EditFunc
	previewer  Previewer
	logger     zerolog.Logger

	// runCtx outlives individual requests; runs started over HTTP must not
	// die with the request that triggered them.
	runCtx context.Context

	mu          sync.Mutex
	state       domain.RunState
	stop        *Stop
	lastOutcome domain.RunOutcome
	globalErr   string
	runDone     chan struct{}
}

// NewService wires the batch surface together. previewer may be nil, in
// which case items carry no preview handles.
func NewService(runCtx context.Context, store *Store, edit EditFunc, previewer Previewer, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		controller: NewController(store, logger),
		edit:       edit,
		previewer:  previewer,
		logger:     logger,
		runCtx:     runCtx,
		state:      domain.RunStateIdle,
	}
}

// SelectFiles replaces the batch wholesale with the given files, all
// pending. Preview rendering is best effort; files whose bytes cannot be
// decoded simply have no preview.
func (s *Service) SelectFiles(ctx context.Context, files []FileUpload) error {
	if s.RunState() == domain.RunStateRunning {
		return domain.ErrRunActive
	}

	items := make([]domain.WorkItem, 0, len(files))
	for _, file := range files {
		item := domain.WorkItem{
			ID:          uuid.NewString(),
			Filename:    file.Filename,
			DisplayName: displayName(file.Filename),
			Source:      domain.ImagePayload{Data: file.Data, MIME: file.MIME},
			Status:      domain.StatusPending,
		}
		if s.previewer != nil {
			key, err := s.previewer.Render(ctx, item.ID, item.Source)
			if err != nil {
				s.logger.Warn().Err(err).Str("filename", file.Filename).Msg("batch: preview render failed")
			} else {
				item.PreviewKey = key
			}
		}
		items = append(items, item)
	}

	// Preview rendering happened outside the lock, so the run state must be
	// re-checked at commit time: a run admitted in between owns the store and
	// must not see the batch swapped under it.
	s.mu.Lock()
	if s.state == domain.RunStateRunning {
		s.mu.Unlock()
		s.releasePreviews(items)
		return domain.ErrRunActive
	}
	s.globalErr = ""
	s.store.ReplaceAll(items)
	s.mu.Unlock()
	return nil
}

// releasePreviews frees the preview handles of items that never made it into
// the store.
func (s *Service) releasePreviews(items []domain.WorkItem) {
	if s.previewer == nil {
		return
	}
	for _, item := range items {
		if item.PreviewKey != "" {
			s.previewer.Release(item.PreviewKey)
		}
	}
}

// StartRun validates the request, then executes the controller in the
// background. Validation failures are reported synchronously and also
// recorded as the global error; no item is mutated.
func (s *Service) StartRun(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.RunStateRunning {
		return domain.ErrRunActive
	}
	if strings.TrimSpace(prompt) == "" || s.store.Len() == 0 {
		s.globalErr = validationMessage
		return domain.ErrInvalidRequest
	}

	s.store.SetPrompt(prompt)
	s.globalErr = ""
	s.state = domain.RunStateRunning
	s.stop = NewStop()
	s.runDone = make(chan struct{})

	stop := s.stop
	done := s.runDone
	go func() {
		defer close(done)
		outcome, err := s.controller.Run(s.runCtx, s.edit, stop)

		s.mu.Lock()
		s.state = domain.RunStateIdle
		s.stop = nil
		if err == nil {
			s.lastOutcome = outcome
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error().Err(err).Msg("batch: run aborted")
			return
		}
		s.logger.Info().Str("outcome", string(outcome)).Msg("batch: run finished")
	}()
	return nil
}

// RequestStop raises the stop signal for the current run. Idempotent and a
// no-op when no run is active.
func (s *Service) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.RunStateRunning || s.stop == nil {
		return
	}
	s.stop.Raise()
}

// RedoItem resets one completed or error item back to pending so the next
// run reprocesses it. Items already pending are a no-op.
func (s *Service) RedoItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.RunStateRunning {
		return domain.ErrRunActive
	}
	if _, ok := s.store.Item(id); !ok {
		return domain.ErrNotFound
	}
	s.globalErr = ""
	s.store.ResetToPending(id)
	return nil
}

// ClearBatch empties the batch, releasing all preview handles.
func (s *Service) ClearBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.RunStateRunning {
		return domain.ErrRunActive
	}
	s.globalErr = ""
	s.lastOutcome = ""
	s.store.Clear()
	return nil
}

// Snapshot returns the current read-only view of the batch.
func (s *Service) Snapshot() Status {
	s.mu.Lock()
	state := s.state
	outcome := s.lastOutcome
	globalErr := s.globalErr
	s.mu.Unlock()

	return Status{
		RunState:    state,
		LastOutcome: outcome,
		GlobalError: globalErr,
		Items:       s.store.Snapshot(),
	}
}

// RunState reports whether a run is currently executing.
func (s *Service) RunState() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Item returns a read-only copy of one item.
func (s *Service) Item(id string) (domain.WorkItem, bool) {
	return s.store.Item(id)
}

// Wait blocks until the current run finishes. It returns immediately when no
// run is active.
func (s *Service) Wait() {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// displayName derives a human-friendly label from an uploaded filename:
// extension stripped, separators spaced, title-cased.
func displayName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return filename
	}
	return cases.Title(language.Und).String(base)
}
