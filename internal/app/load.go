package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/hclconfig"
	"github.com/vk/dsipipe/internal/jsonconfig"
	"github.com/vk/dsipipe/internal/yamlconfig"
)

// LoaderFor picks the pipeline loader by file extension.
func LoaderFor(path string) (config.Loader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return jsonconfig.NewLoader(), nil
	case ".hcl":
		return hclconfig.NewLoader(), nil
	case ".yaml", ".yml":
		return yamlconfig.NewLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported pipeline file extension %q: use .json, .hcl, .yaml or .yml", ext)
	}
}

// LoadModel reads the pipeline file at path.
func LoadModel(ctx context.Context, path string) (*config.Model, error) {
	loader, err := LoaderFor(path)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Loading pipeline.", "path", path, "loader", fmt.Sprintf("%T", loader))
	model, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	return model, nil
}
