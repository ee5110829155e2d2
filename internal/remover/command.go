package remover

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// CommandRemover runs an external segmentation CLI such as `rembg i in.png out.png`.
// Args may contain the {input}, {output} and {model} placeholders.
type CommandRemover struct {
	Command string
	Args    []string
	Model   string
	Timeout time.Duration
	TempDir string
}

func (c *CommandRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp(c.TempDir, "remove-bg-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "input.png")
	outPath := filepath.Join(workDir, "output.png")

	if err := imaging.Save(img, inPath); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.expandArgs(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", c.Command, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", c.Command, err)
	}

	out, err := imaging.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", c.Command, err)
	}
	return out, nil
}

func (c *CommandRemover) expandArgs(inPath, outPath string) []string {
	r := strings.NewReplacer("{input}", inPath, "{output}", outPath, "{model}", c.Model)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}
