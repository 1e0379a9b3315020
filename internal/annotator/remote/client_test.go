package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shape-annotator/internal/annotator/syncer"
	"shape-annotator/internal/shapes/models"
)

type fakeAPI struct {
	tokenCalls atomic.Int32
	saveBody   saveRequest
	saveToken  string
	savePath   string
	loadQuery  string
	loadPath   string
	saveStatus int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/users/me/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sessionid"); err != nil || c.Value != "s1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"email":"ann@example.com"}`))
	})
	mux.HandleFunc("GET /api/get-csrf-token/", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		_, _ = w.Write([]byte(`{"csrfToken":"tok-1"}`))
	})
	mux.HandleFunc("GET /api/load-shapes/{project}/", func(w http.ResponseWriter, r *http.Request) {
		f.loadPath = r.URL.EscapedPath()
		f.loadQuery = r.URL.Query().Get("userEmail")
		if r.PathValue("project") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"type":"circle","x0":0.1,"y0":0.1,"x1":0.2,"y1":0.2,"line":{"color":"#FFFFFF","width":2}}]`))
	})
	mux.HandleFunc("POST /api/save-shapes/{project}/", func(w http.ResponseWriter, r *http.Request) {
		f.savePath = r.URL.EscapedPath()
		f.saveToken = r.Header.Get(CSRFHeader)
		_ = json.NewDecoder(r.Body).Decode(&f.saveBody)
		if f.saveStatus != 0 {
			w.WriteHeader(f.saveStatus)
			_, _ = w.Write([]byte(`{"error":"csrf token mismatch"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /api/user-project-data/{project}/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Label":"a","X":"0.5","Y":"0.25","Size":"0.1","Color":"red"}]`))
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c, api
}

func TestCurrentUserUsesSessionCookie(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.CurrentUser(ctx)
	var remoteErr *syncer.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, http.StatusUnauthorized, remoteErr.Status)
	assert.Contains(t, err.Error(), "unauthorized")

	require.NoError(t, c.Login(ctx, "ann@example.com", "secret"))
	email, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", email)
}

func TestLoadEscapesProjectAndEmail(t *testing.T) {
	c, api := newTestClient(t)

	shapes, err := c.Load(context.Background(), models.Identity{ProjectTitle: "Q3 plan/draft", UserEmail: "a+b@example.com"})

	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, models.KindCircle, shapes[0].Type)
	assert.Equal(t, "/api/load-shapes/Q3%20plan%2Fdraft/", api.loadPath)
	assert.Equal(t, "a+b@example.com", api.loadQuery)
}

func TestLoadNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Load(context.Background(), models.Identity{ProjectTitle: "missing", UserEmail: "a@example.com"})

	assert.ErrorIs(t, err, syncer.ErrNotFound)
}

func TestSaveAttachesCachedToken(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	id := models.Identity{ProjectTitle: "alpha", UserEmail: "ann@example.com"}
	shapes := models.ShapeList{{Type: models.KindLine, X1: 1, Y1: 1}}

	require.NoError(t, c.Save(ctx, id, shapes))
	require.NoError(t, c.Save(ctx, id, shapes))

	assert.Equal(t, int32(1), api.tokenCalls.Load())
	assert.Equal(t, "tok-1", api.saveToken)
	assert.Equal(t, "/api/save-shapes/alpha/", api.savePath)
	assert.Equal(t, "ann@example.com", api.saveBody.UserEmail)
	assert.Equal(t, shapes, api.saveBody.Shapes)
}

func TestSaveForbiddenDropsToken(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()
	id := models.Identity{ProjectTitle: "alpha", UserEmail: "ann@example.com"}
	api.saveStatus = http.StatusForbidden

	err := c.Save(ctx, id, models.ShapeList{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csrf token mismatch")

	api.saveStatus = 0
	require.NoError(t, c.Save(ctx, id, models.ShapeList{}))
	assert.Equal(t, int32(2), api.tokenCalls.Load())
}

func TestEmptyListIsSentAsArray(t *testing.T) {
	c, api := newTestClient(t)

	require.NoError(t, c.Save(context.Background(), models.Identity{ProjectTitle: "alpha", UserEmail: "a@b.c"}, nil))

	assert.NotNil(t, api.saveBody.Shapes)
	assert.Empty(t, api.saveBody.Shapes)
}

func TestProjectData(t *testing.T) {
	c, _ := newTestClient(t)

	points, err := c.ProjectData(context.Background(), "alpha")

	require.NoError(t, err)
	assert.Equal(t, []models.PlotPoint{{Label: "a", X: "0.5", Y: "0.25", Size: "0.1", Color: "red"}}, points)
}

func TestTransportFailureIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.CurrentUser(context.Background())

	var remoteErr *syncer.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Zero(t, remoteErr.Status)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}
