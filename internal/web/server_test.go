package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remove-bg-go/internal/config"
	"remove-bg-go/internal/controller"
	"remove-bg-go/internal/logger"
	"remove-bg-go/internal/removal"
)

type memStore struct{ folders config.Folders }

func (s *memStore) LoadFolders() (config.Folders, error) { return s.folders, nil }

func (s *memStore) SaveFolders(f config.Folders) error {
	s.folders = f
	return nil
}

// gatedRunner finishes a batch only once release is closed.
type gatedRunner struct{ release chan struct{} }

func (g gatedRunner) Run(ctx context.Context, batch removal.Batch, events chan<- removal.Event) {
	events <- removal.Progress{BatchID: batch.ID, Percent: 0}
	<-g.release
	for i, in := range batch.Inputs {
		events <- removal.ItemDone{BatchID: batch.ID, Index: i, Input: in, Output: in + ".out.png", Format: "PNG"}
	}
	events <- removal.Progress{BatchID: batch.ID, Percent: 100}
	events <- removal.Done{BatchID: batch.ID}
}

func newTestServer(t *testing.T, store *memStore, runner controller.Runner) (*Server, *httptest.Server, *controller.Controller) {
	t.Helper()
	ctrl, err := controller.New(store, runner, nil, nil, nil, controller.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := NewServer(ctx, ctrl, logger.Discard())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, ctrl
}

func call(t *testing.T, method, u string, body interface{}) (int, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, u, &buf)
	require.NoError(t, err)
	if method == "POST" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestIndexIsServed(t *testing.T) {
	_, ts, _ := newTestServer(t, &memStore{}, nil)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
}

func TestSettingsRoundTrip(t *testing.T) {
	store := &memStore{}
	_, ts, _ := newTestServer(t, store, nil)

	code, resp := call(t, "POST", ts.URL+"/api/settings", SettingsRequest{ImportFolder: "/in"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	code, _ = call(t, "POST", ts.URL+"/api/settings", SettingsRequest{ImportFolder: "/in", ExportFolder: "/out"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, config.Folders{Import: "/in", Export: "/out"}, store.folders)

	code, resp = call(t, "GET", ts.URL+"/api/settings", nil)
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "/out", data["export_folder"])
}

func TestRemoveWithoutSelection(t *testing.T) {
	_, ts, _ := newTestServer(t, &memStore{folders: config.Folders{Export: "/out"}}, gatedRunner{})

	code, resp := call(t, "POST", ts.URL+"/api/remove", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, controller.StatusSelectFirst, resp.Error)
}

func TestRemoveBroadcastsAndRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	s, ts, ctrl := newTestServer(t, &memStore{folders: config.Folders{Export: "/out"}}, gatedRunner{release: release})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	code, resp := call(t, "POST", ts.URL+"/api/select", SelectRequest{Paths: []string{"/in/a.png", "/in/b.gif"}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1 image(s) selected", resp.Message)

	code, _ = call(t, "POST", ts.URL+"/api/remove", nil)
	assert.Equal(t, http.StatusAccepted, code)

	code, _ = call(t, "POST", ts.URL+"/api/remove", nil)
	assert.Equal(t, http.StatusConflict, code)

	close(release)

	var types []string
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
		if msg.Type == "done" {
			break
		}
	}
	assert.Contains(t, types, "item_done")
	assert.Contains(t, types, "progress")

	require.Eventually(t, func() bool { return ctrl.Snapshot().Phase == controller.PhaseSucceeded }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"/in/a.png.out.png"}, ctrl.Snapshot().Processed)

	_, resp = call(t, "GET", ts.URL+"/api/status", nil)
	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data["summary"], "Processed: 1")
	assert.NotContains(t, data, "errors")
}

func TestThumbnailOnlyForKnownImages(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	require.NoError(t, imaging.Save(imaging.New(300, 150, color.White), img))

	_, ts, ctrl := newTestServer(t, &memStore{}, nil)

	resp, err := http.Get(ts.URL + "/api/thumbnail?path=" + url.QueryEscape(img))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctrl.SelectInputs([]string{img})
	resp, err = http.Get(ts.URL + "/api/thumbnail?path=" + url.QueryEscape(img))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	thumb, err := imaging.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
}

func TestOpenExportWithoutFolder(t *testing.T) {
	_, ts, _ := newTestServer(t, &memStore{}, nil)
	code, resp := call(t, "POST", ts.URL+"/api/open-export", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Error, "export folder")
}

func TestStatusReportsState(t *testing.T) {
	_, ts, _ := newTestServer(t, &memStore{folders: config.Folders{Import: "/in", Export: "/out"}}, nil)
	code, resp := call(t, "GET", ts.URL+"/api/status", nil)
	assert.Equal(t, http.StatusOK, code)
	state := resp.Data.(map[string]interface{})["state"].(map[string]interface{})
	assert.Equal(t, "idle", state["phase"])
	assert.Equal(t, "/out", state["export_folder"])
}

func TestPostRequiresJSONContentType(t *testing.T) {
	store := &memStore{folders: config.Folders{Import: "/in", Export: "/out"}}
	_, ts, ctrl := newTestServer(t, store, gatedRunner{release: make(chan struct{})})
	ctrl.SelectInputs([]string{"/in/a.png"})

	resp, err := http.Post(ts.URL+"/api/settings", "text/plain",
		strings.NewReader(`{"import_folder":"/x","export_folder":"/elsewhere"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, "/out", store.folders.Export)

	resp, err = http.Post(ts.URL+"/api/remove", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, controller.PhaseIdle, ctrl.Snapshot().Phase)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s, ts, _ := newTestServer(t, &memStore{}, nil)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, s.clientCount())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {ts.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestStalledClientDoesNotBlockBroadcast(t *testing.T) {
	s, ts, _ := newTestServer(t, &memStore{}, nil)
	s.writeWait = 100 * time.Millisecond

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.clientCount() == 1 }, time.Second, 10*time.Millisecond)

	// The client never reads, so the socket buffers fill up.
	payload := strings.Repeat("x", 1<<20)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 64; i++ {
			s.broadcastWSMessage("progress", payload)
		}
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("broadcast blocked on a client that does not read")
	}
	assert.Zero(t, s.clientCount())
}
