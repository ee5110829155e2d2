package inspect

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// Inspector reads image dimensions and EXIF metadata, caching results per file version.
type Inspector struct {
	logger *logrus.Logger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewInspector returns a new Inspector.
func NewInspector(logger *logrus.Logger) *Inspector {
	return &Inspector{
		logger: logger,
		cache:  &sync.Map{},
	}
}

// Inspect returns the Info of an image file. EXIF capture time and orientation
// are read for JPEG files when present.
func (i *Inspector) Inspect(path string) (*Info, error) {
	if !i.SupportsFile(path) {
		return nil, fmt.Errorf("file type not supported: %s", path)
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	key := fmt.Sprintf("%s:%d:%d", path, fileInfo.Size(), fileInfo.ModTime().UnixNano())
	if cached, ok := i.cache.Load(key); ok {
		i.countQuery(true)
		info := cached.(Info)
		return &info, nil
	}
	i.countQuery(false)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	format := FormatFromPath(path)
	info := Info{
		Path:    path,
		Name:    filepath.Base(path),
		Format:  format.String(),
		Width:   cfg.Width,
		Height:  cfg.Height,
		Size:    fileInfo.Size(),
		ModTime: fileInfo.ModTime(),
	}

	if format == FormatJPEG {
		if _, err := file.Seek(0, 0); err == nil {
			i.readExif(file, &info)
		}
	}

	i.cache.Store(key, info)
	return &info, nil
}

// SupportsFile reports whether the file is an accepted input format.
func (i *Inspector) SupportsFile(path string) bool {
	return FormatFromPath(path) != FormatUnknown
}

// GetCacheStats returns cache statistics for this inspector.
func (i *Inspector) GetCacheStats() CacheStats {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	stats := i.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

// readExif fills capture time and orientation. Missing EXIF is not an error.
func (i *Inspector) readExif(file *os.File, info *Info) {
	x, err := exif.Decode(file)
	if err != nil {
		i.logger.Debugf("No EXIF in %s: %v", info.Path, err)
		return
	}

	if tm, err := x.DateTime(); err == nil {
		taken := tm
		info.Taken = &taken
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if o, err := tag.Int(0); err == nil {
			info.Orientation = o
			// orientations 5-8 swap the axes once auto-orientation is applied
			if o >= 5 && o <= 8 {
				info.Width, info.Height = info.Height, info.Width
			}
		}
	}
}

func (i *Inspector) countQuery(hit bool) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if hit {
		i.stats.Hits++
	} else {
		i.stats.Misses++
	}
	i.stats.TotalQueries++
}

// Thumbnail loads the image at path and scales it to fit a size x size box,
// keeping the aspect ratio.
func Thumbnail(path string, size uint) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return resize.Thumbnail(size, size, img, resize.Lanczos3), nil
}

// ListImages returns the accepted images directly inside dir, in name order.
func (i *Inspector) ListImages(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !i.SupportsFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := i.Inspect(path)
		if err != nil {
			i.logger.Warnf("Skipping unreadable image %s: %v", path, err)
			continue
		}
		infos = append(infos, *info)
	}
	return infos, nil
}
