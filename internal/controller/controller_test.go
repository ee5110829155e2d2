package controller

import (
	"context"
	"errors"
	"image/color"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remove-bg-go/internal/apperr"
	"remove-bg-go/internal/config"
	"remove-bg-go/internal/removal"
	"remove-bg-go/internal/remover"
)

type fakeStore struct {
	folders config.Folders
	saved   []config.Folders
}

func (s *fakeStore) LoadFolders() (config.Folders, error) { return s.folders, nil }

func (s *fakeStore) SaveFolders(f config.Folders) error {
	s.saved = append(s.saved, f)
	s.folders = f
	return nil
}

type runnerFunc func(ctx context.Context, batch removal.Batch, events chan<- removal.Event)

func (f runnerFunc) Run(ctx context.Context, batch removal.Batch, events chan<- removal.Event) {
	f(ctx, batch, events)
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []string
	err    error
}

func (o *fakeOpener) Open(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	return o.err
}

func newController(t *testing.T, folders config.Folders, runner Runner, opener Opener, openOnDone bool) *Controller {
	t.Helper()
	c, err := New(&fakeStore{folders: folders}, runner, opener, nil, nil, Options{OpenExportOnDone: openOnDone})
	require.NoError(t, err)
	return c
}

func TestNewLoadsPersistedFolders(t *testing.T) {
	c := newController(t, config.Folders{Import: "/in", Export: "/out"}, nil, nil, false)
	st := c.Snapshot()
	assert.Equal(t, "/in", st.ImportFolder)
	assert.Equal(t, "/out", st.ExportFolder)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, c.NeedsFolderSetup())

	assert.True(t, newController(t, config.Folders{}, nil, nil, false).NeedsFolderSetup())
}

func TestStartRemovalWithoutInputsDoesNothing(t *testing.T) {
	var calls int32
	runner := runnerFunc(func(ctx context.Context, batch removal.Batch, events chan<- removal.Event) {
		atomic.AddInt32(&calls, 1)
	})
	c := newController(t, config.Folders{Export: t.TempDir()}, runner, nil, false)

	events, err := c.StartRemoval(context.Background())
	assert.ErrorIs(t, err, ErrNoInputs)
	assert.Nil(t, events)

	st := c.Snapshot()
	assert.Equal(t, StatusSelectFirst, st.Status)
	assert.False(t, st.TriggerEnabled)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestStartRemovalRequiresExportFolder(t *testing.T) {
	c := newController(t, config.Folders{}, nil, nil, false)
	c.SelectInputs([]string{"a.png"})

	_, err := c.StartRemoval(context.Background())
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
	assert.Equal(t, WarningExportMissing, c.Snapshot().Warning)
}

func TestSelectInputsFiltersAndResets(t *testing.T) {
	c := newController(t, config.Folders{}, nil, nil, false)

	n := c.SelectInputs([]string{"a.png", "b.JPG", "c.jpeg", "d.gif", "notes.txt"})
	assert.Equal(t, 3, n)

	st := c.Snapshot()
	assert.Equal(t, []string{"a.png", "b.JPG", "c.jpeg"}, st.Inputs)
	assert.Empty(t, st.Processed)
	assert.True(t, st.TriggerEnabled)

	assert.Zero(t, c.SelectInputs([]string{"clip.gif"}))
	assert.Len(t, c.Snapshot().Inputs, 3, "an empty selection keeps the previous one")
}

func TestSelectInputsFollowsConfiguredExtensions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Extensions = []string{".png"}

	c, err := New(&fakeStore{}, nil, nil, nil, nil, Options{IsImage: cfg.IsImageExtension})
	require.NoError(t, err)

	assert.Equal(t, 1, c.SelectInputs([]string{"a.PNG", "b.jpg"}))
	assert.Equal(t, []string{"a.PNG"}, c.Snapshot().Inputs)
}

func TestConfigureFolders(t *testing.T) {
	store := &fakeStore{}
	c, err := New(store, nil, nil, nil, nil, Options{})
	require.NoError(t, err)

	err = c.ConfigureFolders(" ", "/out")
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
	assert.Empty(t, store.saved)

	require.NoError(t, c.ConfigureFolders("/in", " /out "))
	assert.Equal(t, []config.Folders{{Import: "/in", Export: "/out"}}, store.saved)
	assert.Equal(t, "/out", c.Snapshot().ExportFolder)
}

func TestSuccessfulBatchWithWorker(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for _, name := range []string{"one.png", "two.jpg"} {
		p := filepath.Join(dir, name)
		img := imaging.New(12, 12, color.White)
		img.Set(6, 6, color.Black)
		require.NoError(t, imaging.Save(img, p))
		inputs = append(inputs, p)
	}
	exportDir := filepath.Join(dir, "export")

	worker := removal.NewWorker(remover.NewKeyRemover(60), removal.Options{}, nil)
	opener := &fakeOpener{}
	c := newController(t, config.Folders{Import: dir, Export: exportDir}, worker, opener, true)
	c.SelectInputs(inputs)

	events, err := c.StartRemoval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, c.Snapshot().Phase)
	assert.False(t, c.Snapshot().TriggerEnabled)

	var seen []int
	c.Pump(context.Background(), events, func(ev removal.Event) {
		if p, ok := ev.(removal.Progress); ok {
			seen = append(seen, p.Percent)
		}
	})

	st := c.Snapshot()
	assert.Equal(t, PhaseSucceeded, st.Phase)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, 100, st.Progress)
	assert.False(t, st.ProgressVisible)
	assert.True(t, st.TriggerEnabled)
	require.Len(t, st.Processed, 2)
	for _, out := range st.Processed {
		assert.FileExists(t, out)
		assert.Equal(t, exportDir, filepath.Dir(out))
	}
	assert.Equal(t, []int{0, 50, 100}, seen)
	assert.Equal(t, []string{exportDir}, opener.opened)

	stats := c.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(2), stats.ImagesProcessed)
}

func TestFailedBatchNamesFile(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, batch removal.Batch, events chan<- removal.Event) {
		events <- removal.Progress{BatchID: batch.ID, Percent: 0}
		events <- removal.ItemDone{BatchID: batch.ID, Index: 0, Input: batch.Inputs[0], Output: "/out/a_1.png", Format: "PNG", Bytes: 10}
		events <- removal.Progress{BatchID: batch.ID, Percent: 33}
		events <- removal.Failed{BatchID: batch.ID, Index: 1, Input: batch.Inputs[1], Err: apperr.Decode("b.png", errors.New("bad data"))}
	})
	opener := &fakeOpener{}
	c := newController(t, config.Folders{Export: t.TempDir()}, runner, opener, true)
	c.SelectInputs([]string{"/in/a.png", "/in/b.png", "/in/c.png"})

	events, err := c.StartRemoval(context.Background())
	require.NoError(t, err)
	c.Pump(context.Background(), events, nil)

	st := c.Snapshot()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, "Error processing b.png: bad data", st.Status)
	assert.Equal(t, LevelError, st.Level)
	assert.Equal(t, []string{"/out/a_1.png"}, st.Processed)
	assert.True(t, st.TriggerEnabled)
	assert.True(t, st.ProgressVisible)
	assert.Equal(t, 33, st.Progress)
	assert.Contains(t, st.LastError, "decode error")
	assert.Empty(t, opener.opened)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.ImagesFailed)
	assert.Contains(t, stats.GetErrorSummary(), "decode: /in/b.png - bad data")
}

func TestRetriggerWhileRunningIsRejected(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	runner := runnerFunc(func(ctx context.Context, batch removal.Batch, events chan<- removal.Event) {
		atomic.AddInt32(&calls, 1)
		events <- removal.Progress{BatchID: batch.ID, Percent: 0}
		<-release
		events <- removal.Done{BatchID: batch.ID}
	})
	c := newController(t, config.Folders{Export: t.TempDir()}, runner, nil, false)
	c.SelectInputs([]string{"a.png"})

	events, err := c.StartRemoval(context.Background())
	require.NoError(t, err)

	_, err = c.StartRemoval(context.Background())
	assert.ErrorIs(t, err, ErrBatchRunning)

	close(release)
	c.Pump(context.Background(), events, nil)
	assert.Equal(t, PhaseSucceeded, c.Snapshot().Phase)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHandleIgnoresStaleBatch(t *testing.T) {
	c := newController(t, config.Folders{}, nil, nil, false)
	assert.False(t, c.Handle(removal.Progress{BatchID: "old", Percent: 50}))
	assert.Zero(t, c.Snapshot().Progress)
}

func TestOpenExportFolder(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone")
	opener := &fakeOpener{}
	c := newController(t, config.Folders{Export: missing}, nil, opener, false)

	err := c.OpenExportFolder()
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
	assert.Equal(t, WarningExportMissing, c.Snapshot().Warning)
	assert.Empty(t, opener.opened)

	c.DismissWarning()
	assert.Empty(t, c.Snapshot().Warning)

	existing := t.TempDir()
	require.NoError(t, c.ConfigureFolders(existing, existing))
	require.NoError(t, c.OpenExportFolder())
	assert.Equal(t, []string{existing}, opener.opened)

	opener.err = errors.New("no file browser")
	assert.Error(t, c.OpenExportFolder())
	assert.Equal(t, WarningOpenFailed, c.Snapshot().Warning)
}

func TestPhaseAndLevelText(t *testing.T) {
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "error", LevelError.String())
}
