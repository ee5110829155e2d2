package removal

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// HasTransparency reports whether img has at least one pixel that is not fully opaque.
// The check is by pixel content, not by colour model: an *image.NRGBA whose alpha is
// 255 everywhere counts as opaque and is saved as JPEG.
func HasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// flatten composites img over white, producing an opaque RGB image.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// save writes img to path through a temp file in the same folder and returns the size written.
// Transparent images are written as PNG, everything else as JPEG.
func save(img image.Image, path string, transparent bool, quality int) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".remove-bg-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if transparent {
		err = imaging.Encode(tmp, img, imaging.PNG)
	} else {
		err = imaging.Encode(tmp, flatten(img), imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("encode: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	if err := replaceFile(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("move into place: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err == nil {
		return nil
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmpPath, destPath)
}
