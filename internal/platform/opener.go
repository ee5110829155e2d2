package platform

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Opener launches the operating system's file browser.
type Opener struct{}

// Open shows path in the default file browser. It does not wait for the browser to exit.
func (Opener) Open(path string) error {
	name, args := browserCommand(runtime.GOOS, path)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

func browserCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer", []string{path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}
