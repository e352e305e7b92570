package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/morezero/httpserver-provider/pkg/codec"
)

const logPrefix = "bootstrap:loader"

// DefaultPaths are tried when no explicit bootstrap file is configured.
var DefaultPaths = []string{"config/bootstrap.json", "bootstrap.json"}

// ErrRequiredBindingFailed is returned by Apply when a required binding could not be bound.
var ErrRequiredBindingFailed = errors.New("bootstrap: required binding failed")

// Binder binds one module. *provider.Provider implements it.
type Binder interface {
	Bind(ctx context.Context, cfg *codec.CapabilityConfiguration) error
}

// LoadBootstrapConfig loads the bootstrap file. An explicit path must exist
// and parse. Without one, DefaultPaths are tried and an absent file yields an
// empty config.
func LoadBootstrapConfig(path string) (*BootstrapConfig, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read bootstrap file %s: %w", logPrefix, path, err)
		}
		return parse(path, data)
	}

	for _, p := range DefaultPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return parse(p, data)
	}

	slog.Info(fmt.Sprintf("%s - No bootstrap file found, starting without static bindings", logPrefix))
	return &BootstrapConfig{}, nil
}

func parse(path string, data []byte) (*BootstrapConfig, error) {
	var cfg BootstrapConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s - failed to parse bootstrap file %s: %w", logPrefix, path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s - invalid bootstrap file %s: %w", logPrefix, path, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d bootstrap bindings from %s", logPrefix, len(cfg.Bindings), path))
	return &cfg, nil
}

// Validate checks that every binding names a module and no module appears twice.
func Validate(cfg *BootstrapConfig) error {
	seen := make(map[string]bool, len(cfg.Bindings))
	for i, b := range cfg.Bindings {
		if strings.TrimSpace(b.Module) == "" {
			return fmt.Errorf("binding %d: module is required", i)
		}
		if seen[b.Module] {
			return fmt.Errorf("binding %d: duplicate module %q", i, b.Module)
		}
		seen[b.Module] = true
	}
	return nil
}

// Apply binds every binding in cfg. Failures of optional bindings are logged
// and skipped; the first required failure stops Apply and is returned wrapped
// in ErrRequiredBindingFailed. It returns the number of modules bound.
func Apply(ctx context.Context, binder Binder, cfg *BootstrapConfig) (int, error) {
	bound := 0
	for _, b := range cfg.Bindings {
		if err := binder.Bind(ctx, b.Configuration()); err != nil {
			if b.Required {
				return bound, fmt.Errorf("%s - %w: %s: %w", logPrefix, ErrRequiredBindingFailed, b.Module, err)
			}
			slog.Warn(fmt.Sprintf("%s - Skipping bootstrap binding %s: %v", logPrefix, b.Module, err))
			continue
		}
		bound++
	}
	if len(cfg.Bindings) > 0 {
		slog.Info(fmt.Sprintf("%s - Applied %d of %d bootstrap bindings", logPrefix, bound, len(cfg.Bindings)))
	}
	return bound, nil
}
