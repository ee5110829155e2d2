package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"remove-bg-go/internal/apperr"
	"remove-bg-go/internal/config"
	"remove-bg-go/internal/inspect"
	"remove-bg-go/internal/logger"
	"remove-bg-go/internal/removal"
	"remove-bg-go/internal/statistics"
)

var (
	// ErrNoInputs is returned by StartRemoval when nothing is selected.
	ErrNoInputs = errors.New("no images selected")
	// ErrBatchRunning is returned by StartRemoval while a batch is in flight.
	ErrBatchRunning = errors.New("a removal batch is already running")
)

// SettingsStore persists the import and export folders.
type SettingsStore interface {
	LoadFolders() (config.Folders, error)
	SaveFolders(config.Folders) error
}

// Runner executes one batch, sending its events to the channel.
type Runner interface {
	Run(ctx context.Context, batch removal.Batch, events chan<- removal.Event)
}

// Opener shows a folder in the system file browser.
type Opener interface {
	Open(path string) error
}

// Options tunes controller behaviour.
type Options struct {
	OpenExportOnDone bool
	// IsImage reports whether a file extension is an accepted input.
	IsImage          func(ext string) bool
}

// Controller owns all user-visible state and mediates between front-ends and the worker.
// Every method is safe for concurrent use.
type Controller struct {
	store     SettingsStore
	runner    Runner
	opener    Opener
	inspector *inspect.Inspector
	logger    *logrus.Logger
	opts      Options

	mutex sync.Mutex
	state State
	stats *statistics.Statistics
}

// New creates a Controller and loads the persisted folders.
func New(store SettingsStore, runner Runner, opener Opener, inspector *inspect.Inspector, log *logrus.Logger, opts Options) (*Controller, error) {
	if log == nil {
		log = logger.Discard()
	}
	if inspector == nil {
		inspector = inspect.NewInspector(log)
	}
	if opts.IsImage == nil {
		opts.IsImage = config.DefaultConfig().IsImageExtension
	}

	folders, err := store.LoadFolders()
	if err != nil {
		return nil, fmt.Errorf("load folders: %w", err)
	}

	return &Controller{
		store:     store,
		runner:    runner,
		opener:    opener,
		inspector: inspector,
		logger:    log,
		opts:      opts,
		state: State{
			ImportFolder: folders.Import,
			ExportFolder: folders.Export,
			Status:       StatusReady,
		},
	}, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state.clone()
}

// NeedsFolderSetup reports whether the export folder still has to be configured.
func (c *Controller) NeedsFolderSetup() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state.ExportFolder == ""
}

// Stats returns the statistics of the latest batch, or nil if none was started.
func (c *Controller) Stats() *statistics.Statistics {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stats
}

// Candidates lists the images of the import folder, or of the working directory
// when no import folder is configured.
func (c *Controller) Candidates() ([]inspect.Info, error) {
	dir := c.Snapshot().ImportFolder
	if dir == "" {
		dir = "."
	}
	return c.inspector.ListImages(dir)
}

// InspectorStats reports how often Candidates was served from the metadata cache.
func (c *Controller) InspectorStats() inspect.CacheStats {
	return c.inspector.GetCacheStats()
}

// SelectInputs replaces the input list with the accepted paths and clears the
// processed outputs. A selection without any accepted image leaves the state
// untouched. It returns the number of inputs kept.
func (c *Controller) SelectInputs(paths []string) int {
	var inputs []string
	for _, p := range paths {
		if c.opts.IsImage(filepath.Ext(p)) {
			inputs = append(inputs, p)
		} else {
			logger.WithFile(c.logger, p).Debug("Ignoring unsupported selection")
		}
	}
	if len(inputs) == 0 {
		return 0
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.state.Inputs = inputs
	if c.state.Phase != PhaseRunning {
		c.state.Processed = nil
		c.state.LastError = ""
		c.state.Progress = 0
		c.state.ProgressVisible = false
		c.state.TriggerEnabled = true
		c.state.Status = StatusReady
		c.state.Level = LevelInfo
	}

	c.logger.WithField("count", len(inputs)).Info("Inputs selected")
	return len(inputs)
}

// ConfigureFolders validates and persists the folder pair.
func (c *Controller) ConfigureFolders(importFolder, exportFolder string) error {
	importFolder = strings.TrimSpace(importFolder)
	exportFolder = strings.TrimSpace(exportFolder)
	if importFolder == "" || exportFolder == "" {
		return apperr.Configuration("both import and export folders are required")
	}

	if err := c.store.SaveFolders(config.Folders{Import: importFolder, Export: exportFolder}); err != nil {
		return fmt.Errorf("save folders: %w", err)
	}

	c.mutex.Lock()
	c.state.ImportFolder = importFolder
	c.state.ExportFolder = exportFolder
	c.state.Warning = ""
	c.mutex.Unlock()

	logger.WithOperation(c.logger, "configure_folders").WithFields(logrus.Fields{
		"import": importFolder,
		"export": exportFolder,
	}).Info("Folders saved")
	return nil
}

// StartRemoval starts one worker over the current inputs and returns its event
// channel, which is closed when the worker returns. Events must be fed back
// through Handle (or Pump) to update the state.
func (c *Controller) StartRemoval(ctx context.Context) (<-chan removal.Event, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.state.Inputs) == 0 {
		c.state.Status = StatusSelectFirst
		c.state.Level = LevelError
		c.state.TriggerEnabled = false
		return nil, ErrNoInputs
	}
	if c.state.Phase == PhaseRunning {
		return nil, ErrBatchRunning
	}
	if c.state.ExportFolder == "" {
		c.state.Warning = WarningExportMissing
		return nil, apperr.Configuration("export folder is not set")
	}

	batch := removal.Batch{
		ID:        ksuid.New().String(),
		Inputs:    append([]string(nil), c.state.Inputs...),
		ExportDir: c.state.ExportFolder,
	}

	c.state.Phase = PhaseRunning
	c.state.BatchID = batch.ID
	c.state.Processed = nil
	c.state.Progress = 0
	c.state.ProgressVisible = true
	c.state.TriggerEnabled = false
	c.state.Status = StatusWorking
	c.state.Level = LevelWorking
	c.state.LastError = ""
	c.stats = statistics.NewStatistics(len(batch.Inputs))

	// Room for every event of the batch so the worker never blocks on a slow reader.
	events := make(chan removal.Event, 2*len(batch.Inputs)+2)
	go func() {
		defer close(events)
		c.runner.Run(ctx, batch, events)
	}()

	logger.WithBatch(c.logger, batch.ID).WithField("count", len(batch.Inputs)).Info("Removal started")
	return events, nil
}

// Handle applies one worker event to the state. Events of an older batch are
// ignored; the return value reports whether the state changed.
func (c *Controller) Handle(ev removal.Event) bool {
	c.mutex.Lock()
	if ev.Batch() != c.state.BatchID || c.state.Phase != PhaseRunning {
		c.mutex.Unlock()
		return false
	}

	openFolder := false
	switch e := ev.(type) {
	case removal.Progress:
		c.state.Progress = e.Percent
	case removal.ItemDone:
		c.state.Processed = append(c.state.Processed, e.Output)
		c.stats.RecordOutput(e.Format, e.Bytes)
	case removal.Done:
		c.stats.Finalize()
		c.state.Phase = PhaseSucceeded
		c.state.Progress = 100
		c.state.ProgressVisible = false
		c.state.TriggerEnabled = true
		c.state.Status = StatusSuccess
		c.state.Level = LevelSuccess
		openFolder = c.opts.OpenExportOnDone
	case removal.Failed:
		cause := e.Err
		var ae *apperr.Error
		if errors.As(e.Err, &ae) {
			c.stats.AddError(e.Input, ae.Kind.String(), errString(ae.Err))
			if ae.Err != nil {
				cause = ae.Err
			}
		} else {
			c.stats.AddError(e.Input, apperr.KindUnknown.String(), errString(e.Err))
		}
		c.stats.Finalize()
		c.state.Phase = PhaseFailed
		c.state.TriggerEnabled = true
		name := apperr.FileOf(e.Err)
		if name == "" {
			name = filepath.Base(e.Input)
		}
		c.state.Status = fmt.Sprintf("Error processing %s: %v", name, cause)
		c.state.Level = LevelError
		c.state.LastError = errString(e.Err)
	default:
		c.mutex.Unlock()
		return false
	}
	c.mutex.Unlock()

	if openFolder {
		if err := c.OpenExportFolder(); err != nil {
			logger.WithOperation(c.logger, "open_export").WithError(err).Warn("Could not open export folder")
		}
	}
	return true
}

// Pump feeds events into Handle until the channel closes or ctx is done.
// notify, when non-nil, is called after each handled event.
func (c *Controller) Pump(ctx context.Context, events <-chan removal.Event, notify func(removal.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if c.Handle(ev) && notify != nil {
				notify(ev)
			}
		}
	}
}

// OpenExportFolder shows the export folder in the file browser. A missing folder
// sets a warning and returns a configuration error.
func (c *Controller) OpenExportFolder() error {
	c.mutex.Lock()
	dir := c.state.ExportFolder
	c.mutex.Unlock()

	var openErr error
	if dir == "" {
		openErr = apperr.Configuration("export folder path is not set")
	} else if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		openErr = apperr.Configuration("export folder %s does not exist", dir)
	}
	if openErr != nil {
		c.setWarning(WarningExportMissing)
		return openErr
	}

	if err := c.opener.Open(dir); err != nil {
		c.setWarning(WarningOpenFailed)
		return fmt.Errorf("open export folder: %w", err)
	}
	c.setWarning("")
	return nil
}

// DismissWarning clears the current warning.
func (c *Controller) DismissWarning() {
	c.setWarning("")
}

func (c *Controller) setWarning(msg string) {
	c.mutex.Lock()
	c.state.Warning = msg
	c.mutex.Unlock()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
