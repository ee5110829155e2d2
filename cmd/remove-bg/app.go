package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"remove-bg-go/internal/config"
	"remove-bg-go/internal/controller"
	"remove-bg-go/internal/inspect"
	"remove-bg-go/internal/logger"
	"remove-bg-go/internal/platform"
	"remove-bg-go/internal/removal"
	"remove-bg-go/internal/remover"
)

type appOptions struct {
	console        bool
	openOnDone     bool
	exportOverride string
}

// app bundles everything a front-end needs.
type app struct {
	cfg   *config.Config
	store *config.Store
	log   *logrus.Logger
	ctrl  *controller.Controller
}

func newApp(opts appOptions) (*app, error) {
	store, cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}

	log := setupLogger(cfg, store, opts.console)

	r, err := remover.New(cfg.Remover)
	if err != nil {
		return nil, fmt.Errorf("failed to set up remover: %w", err)
	}
	log.WithField("backend", cfg.Remover.Backend).Debug("Remover ready")

	worker := removal.NewWorker(r, removal.OptionsFromConfig(cfg.Output), log)

	var settings controller.SettingsStore = store
	if opts.exportOverride != "" {
		settings = exportOverride{SettingsStore: store, export: opts.exportOverride}
	}

	ctrl, err := controller.New(settings, worker, platform.Opener{}, inspect.NewInspector(log), log, controller.Options{
		OpenExportOnDone: opts.openOnDone && cfg.Output.OpenExportFolder,
		IsImage:          cfg.IsImageExtension,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, store: store, log: log, ctrl: ctrl}, nil
}

// exportOverride replaces the export folder for a single run without persisting it.
type exportOverride struct {
	controller.SettingsStore
	export string
}

func (o exportOverride) LoadFolders() (config.Folders, error) {
	f, err := o.SettingsStore.LoadFolders()
	if err != nil {
		return f, err
	}
	f.Export = o.export
	return f, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config, store *config.Store, console bool) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   logPath(store, cfg.Logging.FilePath),
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    console,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		fallback := logger.DefaultConfig()
		fallback.FilePath = ""
		fallback.Console = console
		log, _ = logger.NewLogger(fallback)
		log.WithError(err).Warn("Invalid logging settings, using defaults")
	}

	return log
}
