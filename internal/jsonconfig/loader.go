// Package jsonconfig loads JSON pipeline files.
package jsonconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Loader implements config.Loader for JSON.
type Loader struct{}

// NewLoader creates a new JSON loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads and validates the pipeline at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading JSON pipeline config.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	m, err := Parse(src)
	if err != nil {
		return nil, config.WithPath(err, path)
	}
	m.Path = path
	logger.Debug("JSON pipeline config loaded.", "name", m.Name, "steps", len(m.Steps))
	return m, nil
}

// Parse decodes a JSON document into a validated model.
func Parse(src []byte) (*config.Model, error) {
	ty, err := ctyjson.ImpliedType(src)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	val, err := ctyjson.Unmarshal(src, ty)
	if err != nil {
		return nil, fmt.Errorf("decode pipeline config: %w", err)
	}
	return config.FromValue(val)
}
