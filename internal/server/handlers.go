package server

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/clip/id"
	"github.com/maauso/shortform/internal/media"
	"github.com/maauso/shortform/internal/render"
	"github.com/maauso/shortform/internal/session"
	"github.com/maauso/shortform/internal/storage"
)

// SessionCookie names the cookie holding the session ID.
const SessionCookie = "shortform_session"

const (
	// multipartMemory is how much of a multipart body is kept in memory.
	multipartMemory = 32 << 20
	// multipartOverhead allows for form boundaries and headers.
	multipartOverhead = 1 << 20
)

//go:embed templates/index.html
var indexTemplate string

var pageTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"secs": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}).Parse(indexTemplate))

// Renderer runs a render of the given entries.
type Renderer interface {
	Render(ctx context.Context, entries []clip.Entry, transition float64) (*render.Result, error)
}

// Deps are the collaborators and limits the handlers need.
type Deps struct {
	Sessions session.Repository
	Store    storage.Storage
	Renderer Renderer
	Prober   clip.Prober
	Settings clip.Settings

	MaxFiles          int
	MaxUploadBytes    int64
	MaxOutputMB       float64
	Target            media.Size
	DefaultTransition float64
}

// Handlers contains the HTTP handlers of the UI.
type Handlers struct {
	deps      Deps
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		deps:      deps,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// clipView is one row of the clip list.
type clipView struct {
	Position  int
	Entry     clip.Entry
	Bounds    clip.Bounds
	Thumbnail bool
	First     bool
	Last      bool
}

// pageView is the data of the index page.
type pageView struct {
	Flash          string
	Clips          []clipView
	Transition     float64
	MinTransition  float64
	MaxTransition  float64
	TransitionStep float64
	MaxFiles       int
	MaxUploadMB    int64
	MaxOutputMB    float64
	Target         media.Size
	Result         *render.Result
}

// Index handles GET / requests.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	entries := s.Registry.Entries()
	view := pageView{
		Flash:          s.TakeFlash(),
		Clips:          make([]clipView, len(entries)),
		Transition:     s.Transition,
		MinTransition:  media.MinTransition,
		MaxTransition:  media.MaxTransition,
		TransitionStep: media.TransitionStep,
		MaxFiles:       h.deps.MaxFiles,
		MaxUploadMB:    h.deps.MaxUploadBytes / (1024 * 1024),
		MaxOutputMB:    h.deps.MaxOutputMB,
		Target:         h.deps.Target,
		Result:         s.LastResult,
	}
	for i, e := range entries {
		view.Clips[i] = clipView{
			Position:  i + 1,
			Entry:     e,
			Bounds:    h.deps.Settings.BoundsFor(e),
			Thumbnail: i == 0,
			First:     i == 0,
			Last:      i == len(entries)-1,
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		h.logger.Error("failed to render page", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to render page", "TEMPLATE_ERROR")
		return
	}

	if !h.save(w, r, s) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Upload handles POST /uploads requests. The whole batch is rejected when
// any file is not an MP4, is too large, or would push the upload set past
// the file limit.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	limit := int64(h.deps.MaxFiles)*h.deps.MaxUploadBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large", "UPLOAD_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", "INVALID_UPLOAD")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	files := r.MultipartForm.File["files"]
	if err := h.checkBatch(s, files); err != nil {
		h.logger.Warn("upload batch rejected",
			slog.String("session_id", s.ID),
			slog.Int("files", len(files)),
			slog.String("error", err.Error()),
		)
		s.Flash = uploadMessage(err)
		h.saveAndRedirect(w, r, s)
		return
	}

	batch := make([]clip.Upload, 0, len(files))
	for _, fh := range files {
		u, err := h.saveUpload(r.Context(), fh)
		if err != nil {
			h.logger.Error("failed to store upload",
				slog.String("file", fh.Filename),
				slog.String("error", err.Error()),
			)
			for _, saved := range batch {
				_ = h.deps.Store.RemoveUpload(r.Context(), saved.Path)
			}
			s.Flash = uploadMessage(err)
			h.saveAndRedirect(w, r, s)
			return
		}
		batch = append(batch, u)
	}

	if err := s.AddUploads(batch, h.deps.MaxFiles); err != nil {
		s.Flash = uploadMessage(err)
		h.saveAndRedirect(w, r, s)
		return
	}

	res := s.Sync(r.Context(), h.deps.Prober, h.deps.Settings, h.logger)
	if len(res.ProbeFallbacks) > 0 {
		names := make([]string, 0, len(res.ProbeFallbacks))
		for _, fb := range res.ProbeFallbacks {
			if e, ok := s.Registry.Get(fb.Key); ok {
				names = append(names, e.Upload.Name)
			}
		}
		s.Flash = fmt.Sprintf("Could not detect the length of %s; assuming %.0f seconds.",
			strings.Join(names, ", "), h.deps.Settings.MaxClipDuration)
	}

	h.logger.Info("uploads added",
		slog.String("session_id", s.ID),
		slog.Int("added", len(res.Added)),
		slog.Int("total", len(s.Uploads)),
	)
	h.saveAndRedirect(w, r, s)
}

var (
	errNoFiles = errors.New("choose at least one .mp4 file")
	errNotMP4  = errors.New("only .mp4 files are accepted")
)

func (h *Handlers) checkBatch(s *session.State, files []*multipart.FileHeader) error {
	if len(files) == 0 {
		return errNoFiles
	}
	if err := clip.CheckUploadCount(len(s.Uploads)+len(files), h.deps.MaxFiles); err != nil {
		return err
	}
	for _, fh := range files {
		if !strings.EqualFold(filepath.Ext(fh.Filename), ".mp4") {
			return fmt.Errorf("%w: '%s'", errNotMP4, fh.Filename)
		}
		if h.deps.MaxUploadBytes > 0 && fh.Size > h.deps.MaxUploadBytes {
			return fmt.Errorf("%w: '%s'", storage.ErrUploadTooLarge, fh.Filename)
		}
	}
	return nil
}

func (h *Handlers) saveUpload(ctx context.Context, fh *multipart.FileHeader) (clip.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return clip.Upload{}, err
	}
	defer func() { _ = f.Close() }()

	uploadID := id.Generate()
	path, size, err := h.deps.Store.SaveUpload(ctx, uploadID, fh.Filename, f)
	if err != nil {
		return clip.Upload{}, err
	}
	return clip.Upload{ID: uploadID, Name: filepath.Base(fh.Filename), Size: size, Path: path}, nil
}

// uploadMessage turns an upload error into a sentence for the UI.
func uploadMessage(err error) string {
	switch {
	case errors.Is(err, clip.ErrUploadCountExceeded):
		return render.UserMessage(err)
	case errors.Is(err, errNoFiles), errors.Is(err, errNotMP4), errors.Is(err, storage.ErrUploadTooLarge):
		return "Upload rejected: " + err.Error()
	default:
		return "Upload failed: " + err.Error()
	}
}

// DeleteUpload handles POST /uploads/{id}/delete requests.
func (h *Handlers) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	u, found := s.RemoveUpload(chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "upload not found", "UPLOAD_NOT_FOUND")
		return
	}
	if err := h.deps.Store.RemoveUpload(r.Context(), u.Path); err != nil {
		h.logger.Warn("failed to delete upload file",
			slog.String("path", u.Path),
			slog.String("error", err.Error()),
		)
	}
	s.Sync(r.Context(), h.deps.Prober, h.deps.Settings, h.logger)
	h.saveAndRedirect(w, r, s)
}

// Trim handles POST /clips/{id}/trim requests. Values are clamped to the
// clip's bounds when saved.
func (h *Handlers) Trim(w http.ResponseWriter, r *http.Request) {
	start, err1 := parseFloat(r.FormValue("start"))
	duration, err2 := parseFloat(r.FormValue("duration"))
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, "start and duration must be numbers", "INVALID_FORM")
		return
	}
	req := TrimRequest{Start: start, Duration: duration}
	if !h.validate(w, req) {
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	key, found := entryKey(s, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "clip not found", "CLIP_NOT_FOUND")
		return
	}
	s.Registry.Update(key, req.Start, req.Duration, h.deps.Settings)
	h.saveAndRedirect(w, r, s)
}

// Move handles POST /clips/{id}/move requests.
func (h *Handlers) Move(w http.ResponseWriter, r *http.Request) {
	req := MoveRequest{Direction: r.FormValue("direction")}
	if !h.validate(w, req) {
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	key, found := entryKey(s, chi.URLParam(r, "id"))
	if !found {
		writeError(w, http.StatusNotFound, "clip not found", "CLIP_NOT_FOUND")
		return
	}
	s.Registry.Move(key, clip.Direction(req.Direction))
	h.saveAndRedirect(w, r, s)
}

// Render handles POST /render requests. The render runs synchronously; a
// request that arrives while another render is running gets 409.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	transition, err := parseFloat(r.FormValue("transition"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "transition must be a number", "INVALID_FORM")
		return
	}
	req := RenderRequest{Transition: transition}
	if !h.validate(w, req) {
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := h.deps.Renderer.Render(r.Context(), s.Registry.Entries(), req.Transition)
	if errors.Is(err, render.ErrRenderInProgress) {
		writeError(w, http.StatusConflict, render.UserMessage(err), "RENDER_IN_PROGRESS")
		return
	}

	// The render can take minutes; other requests may have saved the
	// session in the meantime, so only the render's fields are written back.
	s = h.reload(r, s)
	s.Transition = req.Transition
	if res != nil {
		s.LastResult = res
	} else if err != nil {
		s.Flash = render.UserMessage(err)
	}

	h.saveAndRedirect(w, r, s)
}

// reload returns the latest stored copy of s, or s itself when the
// session can no longer be read.
func (h *Handlers) reload(r *http.Request, s *session.State) *session.State {
	fresh, err := h.deps.Sessions.FindByID(r.Context(), s.ID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			h.logger.Warn("reload session", slog.String("session_id", s.ID), slog.String("error", err.Error()))
		}
		return s
	}
	return fresh
}

// Artifact handles GET /artifacts/{kind}/{name} requests.
func (h *Handlers) Artifact(w http.ResponseWriter, r *http.Request) {
	kind := storage.ArtifactKind(chi.URLParam(r, "kind"))
	name := chi.URLParam(r, "name")

	path, err := h.deps.Store.ResolveArtifact(kind, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid artifact", "INVALID_ARTIFACT")
		return
	}

	f, err := os.Open(path) // #nosec G304 - path is resolved inside the artifact directory
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open artifact", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to open artifact", "ARTIFACT_READ_FAILED")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open artifact", "ARTIFACT_READ_FAILED")
		return
	}

	contentType := "video/mp4"
	if kind == storage.ArtifactThumbnail {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// session loads the caller's session, starting a new one when the cookie
// is missing or unknown. It writes an error response and returns false on
// repository failures.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		s, err := h.deps.Sessions.FindByID(r.Context(), c.Value)
		if err == nil {
			return s, true
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			h.logger.Error("failed to load session", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to load session", "SESSION_LOAD_FAILED")
			return nil, false
		}
	}

	s := session.New(h.deps.DefaultTransition)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s, true
}

func (h *Handlers) save(w http.ResponseWriter, r *http.Request, s *session.State) bool {
	s.Touch()
	if err := h.deps.Sessions.Save(r.Context(), s); err != nil {
		h.logger.Error("failed to save session",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save session", "SESSION_SAVE_FAILED")
		return false
	}
	return true
}

func (h *Handlers) saveAndRedirect(w http.ResponseWriter, r *http.Request, s *session.State) {
	if !h.save(w, r, s) {
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// validate runs struct validation and writes a 400 on failure.
func (h *Handlers) validate(w http.ResponseWriter, req any) bool {
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// entryKey finds the registry key of the clip built from an upload.
func entryKey(s *session.State, uploadID string) (string, bool) {
	i := slices.IndexFunc(s.Uploads, func(u clip.Upload) bool { return u.ID == uploadID })
	if i < 0 {
		return "", false
	}
	key := s.Uploads[i].Key()
	if _, ok := s.Registry.Get(key); !ok {
		return "", false
	}
	return key, true
}

func parseFloat(v string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
