package remover

import (
	"context"
	"image"
	"net/http"
	"time"

	"remove-bg-go/internal/apperr"
	"remove-bg-go/internal/config"
)

// Remover strips the background of an image. The result carries transparency
// where the background was.
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Func adapts a plain function to the Remover interface.
type Func func(ctx context.Context, img image.Image) (image.Image, error)

func (f Func) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return f(ctx, img)
}

// New builds the remover selected by cfg.Backend.
func New(cfg config.RemoverConfig) (Remover, error) {
	var timeout time.Duration
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	switch cfg.Backend {
	case config.BackendCommand:
		return &CommandRemover{
			Command: cfg.Command,
			Args:    cfg.Args,
			Model:   cfg.Model,
			Timeout: timeout,
		}, nil
	case config.BackendHTTP:
		return &HTTPRemover{
			URL:    cfg.URL,
			Model:  cfg.Model,
			Client: &http.Client{Timeout: timeout},
		}, nil
	case config.BackendKey:
		return NewKeyRemover(cfg.KeyTolerance), nil
	default:
		return nil, apperr.Configuration("unknown remover backend: %s", cfg.Backend)
	}
}
