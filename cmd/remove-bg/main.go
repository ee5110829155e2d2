package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"remove-bg-go/internal/config"
	"remove-bg-go/internal/controller"
	"remove-bg-go/internal/inspect"
	"remove-bg-go/internal/removal"
	"remove-bg-go/internal/statistics"
	"remove-bg-go/internal/tui"
	"remove-bg-go/internal/web"
)

var (
	cfgFile      string
	verbose      bool
	quiet        bool
	port         int
	exportDir    string
	openAfter    bool
	importFolder string
	exportFolder string
)

// rootCmd is the base command for the CLI. Without a subcommand it starts the TUI.
var rootCmd = &cobra.Command{
	Use:   "remove-bg",
	Short: "Remove image backgrounds and save the results to an export folder",
	Long: `remove-bg strips the background of PNG and JPEG images with a segmentation
model and writes the results to the configured export folder.

Results that keep transparency are saved as PNG, fully opaque results as JPEG.
Each output is named <name>_<unix time>.<ext> so reruns never overwrite earlier results.

Run without arguments for the terminal interface, or use "serve" for the web interface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

// removeCmd runs one batch without an interface.
var removeCmd = &cobra.Command{
	Use:   "remove [files...]",
	Short: "Remove the background of the given images",
	Long: `Removes the background of every given PNG or JPEG image. Without arguments,
all images of the configured import folder are processed. The batch stops at the
first image that fails; results written before the failure are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRemove(args)
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a local web server with the same workflow as the terminal interface:
folder settings, image selection with thumbnails, and live progress over a WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Flags().Changed("port"))
	},
}

// settingsCmd shows the persisted settings.
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show the persisted folder settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowSettings()
	},
}

// settingsSetCmd updates the persisted folders.
var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the import and export folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetSettings()
	},
}

// openCmd opens the export folder in the system file browser.
var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the export folder in the file browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOpen()
	},
}

// inspectCmd prints dimensions and EXIF metadata of an image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show dimensions and EXIF metadata of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is <user config dir>/remove-bg/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	removeCmd.Flags().StringVar(&exportDir, "export", "", "export folder for this run (not persisted)")
	removeCmd.Flags().BoolVar(&openAfter, "open", false, "open the export folder when done")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	settingsSetCmd.Flags().StringVar(&importFolder, "import", "", "import folder")
	settingsSetCmd.Flags().StringVar(&exportFolder, "export", "", "export folder")
	settingsCmd.AddCommand(settingsSetCmd)

	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(inspectCmd)
}

// runTUI starts the full-screen terminal interface. Logs only go to the log file.
func runTUI() error {
	a, err := newApp(appOptions{console: false, openOnDone: true})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.log.Info("Starting terminal interface")
	program := tea.NewProgram(tui.NewModel(ctx, a.ctrl), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("terminal interface failed: %w", err)
	}
	return nil
}

// runRemove processes the given files, or the import folder, headlessly.
func runRemove(args []string) error {
	a, err := newApp(appOptions{console: !quiet, openOnDone: openAfter, exportOverride: exportDir})
	if err != nil {
		return err
	}

	inputs := args
	if len(inputs) == 0 {
		infos, err := a.ctrl.Candidates()
		if err != nil {
			return fmt.Errorf("list import folder: %w", err)
		}
		for _, info := range infos {
			inputs = append(inputs, info.Path)
		}
	}
	for _, in := range inputs {
		if !fileExists(in) {
			return fmt.Errorf("file does not exist: %s", in)
		}
	}

	a.ctrl.SelectInputs(inputs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := a.ctrl.StartRemoval(ctx)
	if err != nil {
		if errors.Is(err, controller.ErrNoInputs) {
			return errors.New(controller.StatusSelectFirst)
		}
		return err
	}

	a.ctrl.Pump(ctx, events, func(ev removal.Event) {
		if p, ok := ev.(removal.Progress); ok {
			a.log.WithField("percent", p.Percent).Info("Progress")
		}
	})

	st := a.ctrl.Snapshot()
	if !quiet {
		if stats := a.ctrl.Stats(); stats != nil {
			fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.StatsRows(stats)))
		}
		for _, out := range st.Processed {
			fmt.Fprintln(os.Stdout, out)
		}
	}

	switch st.Phase {
	case controller.PhaseSucceeded:
		if !quiet {
			fmt.Fprintln(os.Stdout, st.Status)
		}
		return nil
	case controller.PhaseFailed:
		if stats := a.ctrl.Stats(); stats != nil {
			fmt.Fprintln(os.Stderr, stats.GetErrorSummary())
		}
		return errors.New(st.Status)
	default:
		return fmt.Errorf("removal interrupted")
	}
}

// runServe starts the web server and handles graceful shutdown.
func runServe(portFlagSet bool) error {
	a, err := newApp(appOptions{console: !quiet, openOnDone: false})
	if err != nil {
		return err
	}
	if !portFlagSet {
		port = a.cfg.Web.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := web.NewServer(ctx, a.ctrl, a.log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("remove-bg web interface: http://127.0.0.1:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

func runShowSettings() error {
	store, cfg, err := loadSettings()
	if err != nil {
		return err
	}

	fmt.Printf("Settings file:  %s\n", store.Path())
	fmt.Printf("Import folder:  %s\n", orNotSet(cfg.ImportFolder))
	fmt.Printf("Export folder:  %s\n", orNotSet(cfg.ExportFolder))
	fmt.Printf("Backend:        %s\n", cfg.Remover.Backend)
	fmt.Printf("Output naming:  %s\n", cfg.Output.Naming)
	return nil
}

func runSetSettings() error {
	store, _, err := loadSettings()
	if err != nil {
		return err
	}

	folders, err := store.LoadFolders()
	if err != nil {
		return err
	}
	if importFolder != "" {
		folders.Import = importFolder
	}
	if exportFolder != "" {
		folders.Export = exportFolder
	}
	if err := store.SaveFolders(folders); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	fmt.Printf("Saved to %s\n", store.Path())
	return nil
}

func runOpen() error {
	a, err := newApp(appOptions{console: !quiet})
	if err != nil {
		return err
	}
	return a.ctrl.OpenExportFolder()
}

// runInspect prints what the inspector reads from a single image.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	info, err := inspect.NewInspector(logrus.New()).Inspect(filePath)
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	fmt.Printf("File:        %s\n", info.Path)
	fmt.Printf("Format:      %s\n", info.Format)
	fmt.Printf("Dimensions:  %dx%d\n", info.Width, info.Height)
	fmt.Printf("Size:        %s\n", statistics.FormatBytes(info.Size))
	if info.Taken != nil {
		fmt.Printf("Taken:       %s\n", info.Taken.Format("2006-01-02 15:04:05"))
	}
	if info.Orientation != 0 {
		fmt.Printf("Orientation: %d\n", info.Orientation)
	}
	return nil
}

func loadSettings() (*config.Store, *config.Config, error) {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}

	store, err := config.NewStore(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := store.Config()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return store, cfg, nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// logPath places a relative log file next to the settings file.
func logPath(store *config.Store, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(store.Path()), p)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
