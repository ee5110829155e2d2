package inspect

import (
	"path/filepath"
	"strings"
	"time"
)

// Format represents the encoding of an image file.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
)

// String returns the string representation of the Format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "JPEG"
	case FormatPNG:
		return "PNG"
	default:
		return "Unknown"
	}
}

// FormatFromPath derives the format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	default:
		return FormatUnknown
	}
}

// Info describes an image shown in the picker and in thumbnails lists.
type Info struct {
	Path        string     `json:"path"`
	Name        string     `json:"name"`
	Format      string     `json:"format"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Size        int64      `json:"size"`
	ModTime     time.Time  `json:"mod_time"`
	Taken       *time.Time `json:"taken,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	HitRate      float64
	TotalQueries int64
}
