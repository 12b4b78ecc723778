package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/shortform/internal/clip"
	"github.com/maauso/shortform/internal/media"
	"github.com/maauso/shortform/internal/render"
	"github.com/maauso/shortform/internal/session"
	"github.com/maauso/shortform/internal/storage"
)

// mockRenderer implements Renderer for testing.
type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, entries []clip.Entry, transition float64) (*render.Result, error) {
	args := m.Called(ctx, entries, transition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*render.Result), args.Error(1)
}

// stubProber reports a fixed duration, or an error when err is set.
type stubProber struct {
	duration float64
	err      error
}

func (p stubProber) Duration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type testServer struct {
	handler  http.Handler
	sessions *session.MemoryRepository
	store    *storage.LocalStorage
	renderer *mockRenderer
	dirs     storage.Dirs
	cookie   *http.Cookie
}

func newTestServer(t *testing.T, maxFiles int) *testServer {
	t.Helper()
	return newTestServerWithProber(t, maxFiles, stubProber{duration: 20})
}

func newTestServerWithProber(t *testing.T, maxFiles int, prober clip.Prober) *testServer {
	t.Helper()

	root := t.TempDir()
	dirs := storage.Dirs{
		Temp:           filepath.Join(root, "tmp"),
		Uploads:        filepath.Join(root, "uploads"),
		Output:         filepath.Join(root, "output"),
		Thumbnail:      filepath.Join(root, "thumbnail"),
		MaxUploadBytes: 1024,
	}
	store, err := storage.NewLocalStorage(dirs)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{
		sessions: session.NewMemoryRepository(),
		store:    store,
		renderer: &mockRenderer{},
		dirs:     dirs,
	}
	h := NewHandlers(Deps{
		Sessions:          ts.sessions,
		Store:             store,
		Renderer:          ts.renderer,
		Prober:            prober,
		Settings:          clip.DefaultSettings(),
		MaxFiles:          maxFiles,
		MaxUploadBytes:    1024,
		MaxOutputMB:       32,
		Target:            media.Size{Width: 1080, Height: 1920},
		DefaultTransition: 0.5,
	}, logger)
	ts.handler = NewRouter(h, logger, DefaultConfig())
	return ts
}

// do sends a request carrying the session cookie and remembers a newly
// issued one.
func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			ts.cookie = c
		}
	}
	return rec
}

func (ts *testServer) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(t, req)
}

func (ts *testServer) upload(t *testing.T, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, req)
}

func (ts *testServer) state(t *testing.T) *session.State {
	t.Helper()
	require.NotNil(t, ts.cookie, "no session cookie issued")
	s, err := ts.sessions.FindByID(context.Background(), ts.cookie.Value)
	require.NoError(t, err)
	return s
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 10)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIndex(t *testing.T) {
	t.Run("new visitor gets a session cookie", func(t *testing.T) {
		ts := newTestServer(t, 10)

		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "Short-form video maker")
		require.NotNil(t, ts.cookie)
		assert.True(t, ts.cookie.HttpOnly)
	})

	t.Run("lists clips and clears the flash", func(t *testing.T) {
		ts := newTestServer(t, 10)
		assertRedirect(t, ts.upload(t, map[string]string{"intro.mp4": "aaaa"}))

		s := ts.state(t)
		s.Flash = "hello there"
		require.NoError(t, ts.sessions.Save(context.Background(), s))

		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "intro.mp4")
		assert.Contains(t, rec.Body.String(), "hello there")

		assert.Empty(t, ts.state(t).Flash)
	})
}

func TestUpload(t *testing.T) {
	t.Run("adds files and syncs the registry", func(t *testing.T) {
		ts := newTestServer(t, 10)

		rec := ts.upload(t, map[string]string{"a.mp4": "aaaa", "b.MP4": "bbbbbb"})
		assertRedirect(t, rec)

		s := ts.state(t)
		require.Len(t, s.Uploads, 2)
		require.Equal(t, 2, s.Registry.Len())
		for _, e := range s.Registry.Entries() {
			assert.InDelta(t, 20.0, e.DetectedDuration, 1e-9)
			assert.InDelta(t, 15.0, e.TrimStart, 1e-9)
			assert.InDelta(t, 5.0, e.TrimDuration, 1e-9)
			assert.FileExists(t, e.Upload.Path)
		}
		assert.Empty(t, s.Flash)
	})

	t.Run("rejects a batch containing a non-mp4 file", func(t *testing.T) {
		ts := newTestServer(t, 10)

		rec := ts.upload(t, map[string]string{"a.mp4": "aaaa", "notes.txt": "x"})
		assertRedirect(t, rec)

		s := ts.state(t)
		assert.Empty(t, s.Uploads)
		assert.Contains(t, s.Flash, "notes.txt")
	})

	t.Run("rejects a batch over the file limit", func(t *testing.T) {
		ts := newTestServer(t, 2)
		assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "a"}))

		rec := ts.upload(t, map[string]string{"b.mp4": "b", "c.mp4": "c"})
		assertRedirect(t, rec)

		s := ts.state(t)
		assert.Len(t, s.Uploads, 1)
		assert.NotEmpty(t, s.Flash)

		entries, err := os.ReadDir(ts.dirs.Uploads)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rejects an oversized file", func(t *testing.T) {
		ts := newTestServer(t, 10)

		rec := ts.upload(t, map[string]string{"big.mp4": strings.Repeat("x", 2048)})
		assertRedirect(t, rec)

		s := ts.state(t)
		assert.Empty(t, s.Uploads)
		assert.Contains(t, s.Flash, "big.mp4")
	})

	t.Run("names clips whose length could not be detected", func(t *testing.T) {
		ts := newTestServerWithProber(t, 10, stubProber{err: errors.New("invalid data found")})

		assertRedirect(t, ts.upload(t, map[string]string{"odd.mp4": "????"}))

		s := ts.state(t)
		require.Equal(t, 1, s.Registry.Len())
		assert.InDelta(t, 15.0, s.Registry.Entries()[0].DetectedDuration, 1e-9)
		assert.Contains(t, s.Flash, "odd.mp4")
		assert.Contains(t, s.Flash, "15 seconds")
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		ts := newTestServer(t, 10)

		assertRedirect(t, ts.upload(t, map[string]string{}))
		assert.NotEmpty(t, ts.state(t).Flash)
	})
}

func TestDeleteUpload(t *testing.T) {
	ts := newTestServer(t, 10)
	assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "aaaa"}))
	u := ts.state(t).Uploads[0]

	rec := ts.postForm(t, "/uploads/"+u.ID+"/delete", nil)
	assertRedirect(t, rec)

	s := ts.state(t)
	assert.Empty(t, s.Uploads)
	assert.Equal(t, 0, s.Registry.Len())
	assert.NoFileExists(t, u.Path)

	rec = ts.postForm(t, "/uploads/"+u.ID+"/delete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrim(t *testing.T) {
	ts := newTestServer(t, 10)
	assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "aaaa"}))
	uploadID := ts.state(t).Uploads[0].ID

	t.Run("clamps to the clip bounds", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/"+uploadID+"/trim", url.Values{"start": {"100"}, "duration": {"30"}})
		assertRedirect(t, rec)

		e := ts.state(t).Registry.Entries()[0]
		assert.InDelta(t, 15.0, e.TrimStart, 1e-9)
		assert.InDelta(t, 15.0, e.TrimDuration, 1e-9)
	})

	t.Run("stores values inside the bounds", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/"+uploadID+"/trim", url.Values{"start": {"2.5"}, "duration": {"7"}})
		assertRedirect(t, rec)

		e := ts.state(t).Registry.Entries()[0]
		assert.InDelta(t, 2.5, e.TrimStart, 1e-9)
		assert.InDelta(t, 7.0, e.TrimDuration, 1e-9)
	})

	t.Run("bad number", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/"+uploadID+"/trim", url.Values{"start": {"abc"}, "duration": {"7"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative start", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/"+uploadID+"/trim", url.Values{"start": {"-1"}, "duration": {"7"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown clip", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/upl-missing/trim", url.Values{"start": {"1"}, "duration": {"7"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMove(t *testing.T) {
	ts := newTestServer(t, 10)
	assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "a"}))
	assertRedirect(t, ts.upload(t, map[string]string{"b.mp4": "b"}))
	first := ts.state(t).Registry.Entries()[0].Upload

	rec := ts.postForm(t, "/clips/"+first.ID+"/move", url.Values{"direction": {"down"}})
	assertRedirect(t, rec)

	entries := ts.state(t).Registry.Entries()
	assert.Equal(t, "b.mp4", entries[0].Upload.Name)
	assert.Equal(t, "a.mp4", entries[1].Upload.Name)

	t.Run("last entry down is a no-op", func(t *testing.T) {
		assertRedirect(t, ts.postForm(t, "/clips/"+first.ID+"/move", url.Values{"direction": {"down"}}))
		assert.Equal(t, "a.mp4", ts.state(t).Registry.Entries()[1].Upload.Name)
	})

	t.Run("invalid direction", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/"+first.ID+"/move", url.Values{"direction": {"sideways"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown clip", func(t *testing.T) {
		rec := ts.postForm(t, "/clips/upl-missing/move", url.Values{"direction": {"up"}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRender(t *testing.T) {
	t.Run("stores the result", func(t *testing.T) {
		ts := newTestServer(t, 10)
		assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "a"}))

		res := &render.Result{State: render.StateDone, VideoPath: "output/shortform_1700000000.mp4"}
		ts.renderer.On("Render", mock.Anything, mock.MatchedBy(func(e []clip.Entry) bool {
			return len(e) == 1 && e[0].Upload.Name == "a.mp4"
		}), 0.75).Return(res, nil)

		rec := ts.postForm(t, "/render", url.Values{"transition": {"0.75"}})
		assertRedirect(t, rec)

		s := ts.state(t)
		assert.InDelta(t, 0.75, s.Transition, 1e-9)
		require.NotNil(t, s.LastResult)
		assert.Equal(t, render.StateDone, s.LastResult.State)
		ts.renderer.AssertExpectations(t)
	})

	t.Run("keeps changes saved while the render runs", func(t *testing.T) {
		ts := newTestServer(t, 10)
		assertRedirect(t, ts.upload(t, map[string]string{"a.mp4": "a"}))
		key := ts.state(t).Registry.Entries()[0].Upload.Key()

		res := &render.Result{State: render.StateDone, VideoPath: "output/shortform_1700000000.mp4"}
		ts.renderer.On("Render", mock.Anything, mock.Anything, 0.5).
			Run(func(mock.Arguments) {
				s := ts.state(t)
				require.True(t, s.Registry.Update(key, 3, 4, clip.DefaultSettings()))
				require.NoError(t, ts.sessions.Save(context.Background(), s))
			}).
			Return(res, nil)

		assertRedirect(t, ts.postForm(t, "/render", url.Values{"transition": {"0.5"}}))

		s := ts.state(t)
		e := s.Registry.Entries()[0]
		assert.InDelta(t, 3.0, e.TrimStart, 1e-9)
		assert.InDelta(t, 4.0, e.TrimDuration, 1e-9)
		require.NotNil(t, s.LastResult)
		assert.Equal(t, render.StateDone, s.LastResult.State)
	})

	t.Run("failed render keeps the partial result", func(t *testing.T) {
		ts := newTestServer(t, 10)
		res := &render.Result{State: render.StateFailed, Error: "no clips"}
		ts.renderer.On("Render", mock.Anything, mock.Anything, 0.5).Return(res, render.ErrNoClips)

		assertRedirect(t, ts.postForm(t, "/render", url.Values{"transition": {"0.5"}}))

		s := ts.state(t)
		require.NotNil(t, s.LastResult)
		assert.Equal(t, render.StateFailed, s.LastResult.State)
	})

	t.Run("render without a result sets the flash", func(t *testing.T) {
		ts := newTestServer(t, 10)
		ts.renderer.On("Render", mock.Anything, mock.Anything, 0.5).Return(nil, errors.New("boom"))

		assertRedirect(t, ts.postForm(t, "/render", url.Values{"transition": {"0.5"}}))
		assert.Contains(t, ts.state(t).Flash, "boom")
	})

	t.Run("concurrent render is rejected", func(t *testing.T) {
		ts := newTestServer(t, 10)
		ts.renderer.On("Render", mock.Anything, mock.Anything, 0.5).Return(nil, render.ErrRenderInProgress)

		rec := ts.postForm(t, "/render", url.Values{"transition": {"0.5"}})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "RENDER_IN_PROGRESS")
	})

	t.Run("transition out of range", func(t *testing.T) {
		ts := newTestServer(t, 10)

		for _, v := range []string{"0.05", "1.5", "x"} {
			rec := ts.postForm(t, "/render", url.Values{"transition": {v}})
			assert.Equal(t, http.StatusBadRequest, rec.Code, v)
		}
		ts.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestArtifact(t *testing.T) {
	ts := newTestServer(t, 10)
	paths, err := ts.store.ArtifactPaths(time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Video, []byte("video-bytes"), 0o600))
	require.NoError(t, os.WriteFile(paths.Thumbnail, []byte("jpeg-bytes"), 0o600))

	t.Run("serves the video", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/artifacts/video/"+filepath.Base(paths.Video), nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.Equal(t, "video-bytes", rec.Body.String())
	})

	t.Run("serves the thumbnail", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/artifacts/thumbnail/"+filepath.Base(paths.Thumbnail), nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	})

	t.Run("missing file", func(t *testing.T) {
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/artifacts/video/shortform_1.mp4", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects unsafe names and kinds", func(t *testing.T) {
		for _, path := range []string{
			"/artifacts/video/.hidden",
			"/artifacts/video/..%5Csecret",
			"/artifacts/uploads/a.mp4",
		} {
			rec := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}

func TestRouter_PanicIsLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	r := chi.NewRouter()
	r.Use(middlewareStack(logger, DefaultConfig())...)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), `msg="http request"`)
	assert.Contains(t, logs.String(), "status=500")
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/render", nil)
		req.Header.Set("Origin", "http://example.com")
		rec := httptest.NewRecorder()

		CORSMiddleware([]string{"http://example.com"})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()

		CORSMiddleware([]string{"http://example.com"})(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
