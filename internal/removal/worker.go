package removal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"remove-bg-go/internal/apperr"
	"remove-bg-go/internal/config"
	"remove-bg-go/internal/logger"
	"remove-bg-go/internal/remover"
)

// Options controls how results are named and encoded.
type Options struct {
	Naming           string
	ResizeToOriginal bool
	JPEGQuality      int
	Now              func() time.Time
}

// OptionsFromConfig maps the output section of the configuration onto worker options.
func OptionsFromConfig(cfg config.OutputConfig) Options {
	return Options{
		Naming:           cfg.Naming,
		ResizeToOriginal: cfg.ResizeToOriginal,
		JPEGQuality:      cfg.JPEGQuality,
	}
}

// Batch is one user-triggered removal over the currently selected inputs.
type Batch struct {
	ID        string
	Inputs    []string
	ExportDir string
}

// Result describes a single processed input.
type Result struct {
	Input    string
	Output   string
	Format   string
	Bytes    int64
	Duration time.Duration
}

// Worker removes backgrounds for a batch, one input at a time.
type Worker struct {
	remover remover.Remover
	opts    Options
	log     *logrus.Logger
}

// NewWorker returns a Worker using r for the segmentation step.
func NewWorker(r remover.Remover, opts Options, log *logrus.Logger) *Worker {
	if opts.Naming == "" {
		opts.Naming = config.NamingTimestamp
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 95
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Worker{remover: r, opts: opts, log: log}
}

// Run processes batch.Inputs in order, sending events as it goes. It stops at the
// first failing item; outputs already written are kept. Run never panics and does
// not close events.
func (w *Worker) Run(ctx context.Context, batch Batch, events chan<- Event) {
	log := logger.WithBatch(w.log, batch.ID)
	total := len(batch.Inputs)
	log.WithField("count", total).Info("Starting background removal")

	events <- Progress{BatchID: batch.ID, Percent: 0}

	outputs := make([]string, 0, total)
	for i, input := range batch.Inputs {
		res, err := w.safeProcess(ctx, input, batch.ExportDir)
		if err != nil {
			logger.WithFile(log, input).WithError(err).Error("Background removal failed, stopping batch")
			events <- Failed{BatchID: batch.ID, Index: i, Input: input, Err: err}
			return
		}

		logger.WithFile(log, input).WithFields(logrus.Fields{
			"output":   res.Output,
			"bytes":    res.Bytes,
			"duration": res.Duration.String(),
		}).Info("Background removed")

		outputs = append(outputs, res.Output)
		events <- ItemDone{
			BatchID: batch.ID,
			Index:   i,
			Input:   input,
			Output:  res.Output,
			Format:  res.Format,
			Bytes:   res.Bytes,
		}
		events <- Progress{BatchID: batch.ID, Percent: percent(i+1, total)}
	}

	log.Info("Background removal completed")
	events <- Done{BatchID: batch.ID, Outputs: outputs}
}

// safeProcess converts a panic inside the remover into a processing error.
func (w *Worker) safeProcess(ctx context.Context, input, exportDir string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Processing(filepath.Base(input), "remove", fmt.Errorf("panic: %v", r))
		}
	}()
	return w.Process(ctx, input, exportDir)
}

// Process removes the background of a single image and writes it into exportDir.
func (w *Worker) Process(ctx context.Context, input, exportDir string) (Result, error) {
	start := time.Now()
	name := filepath.Base(input)

	format, err := imaging.FormatFromFilename(input)
	if err != nil || (format != imaging.PNG && format != imaging.JPEG) {
		return Result{}, apperr.Decode(name, fmt.Errorf("unsupported image format %q", filepath.Ext(input)))
	}

	src, err := imaging.Open(input, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, apperr.Decode(name, err)
	}

	out, err := w.remover.Remove(ctx, src)
	if err != nil {
		return Result{}, apperr.Processing(name, "remove", err)
	}
	if out == nil {
		return Result{}, apperr.Processing(name, "remove", errors.New("remover returned no image"))
	}

	if w.opts.ResizeToOriginal {
		sb, ob := src.Bounds(), out.Bounds()
		if sb.Dx() != ob.Dx() || sb.Dy() != ob.Dy() {
			out = imaging.Resize(out, sb.Dx(), sb.Dy(), imaging.Lanczos)
		}
	}

	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return Result{}, apperr.Processing(name, "save", fmt.Errorf("create export folder: %w", err))
	}

	transparent := HasTransparency(out)
	outPath, err := OutputPath(exportDir, input, transparent, w.opts.Naming, w.opts.Now())
	if err != nil {
		return Result{}, apperr.Processing(name, "save", err)
	}

	size, err := save(out, outPath, transparent, w.opts.JPEGQuality)
	if err != nil {
		return Result{}, apperr.Processing(name, "save", err)
	}

	outFormat := "JPEG"
	if transparent {
		outFormat = "PNG"
	}

	return Result{
		Input:    input,
		Output:   outPath,
		Format:   outFormat,
		Bytes:    size,
		Duration: time.Since(start),
	}, nil
}

func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
