package removal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remove-bg-go/internal/config"
)

const fixedName = "output"

// OutputPath derives where the result for input is written.
//
// With the timestamp policy the name is {stem}_{unix}.{ext}; when that file
// already exists a counter is appended so earlier outputs are never clobbered.
// With the fixed policy every result goes to output.{ext}. A path that cannot
// be checked (name too long, permission denied) is an error.
func OutputPath(dir, input string, transparent bool, naming string, now time.Time) (string, error) {
	ext := ".jpg"
	if transparent {
		ext = ".png"
	}

	if naming == config.NamingFixed {
		return filepath.Join(dir, fixedName+ext), nil
	}

	name := filepath.Base(input)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	base := fmt.Sprintf("%s_%d", stem, now.Unix())

	path := filepath.Join(dir, base+ext)
	for counter := 1; ; counter++ {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("check output name: %w", err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}
}
