// Package yamlconfig loads YAML pipeline files. The document shape is the
// same as the JSON format.
package yamlconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/ctyconv"
	"gopkg.in/yaml.v3"
)

// Loader implements config.Loader for YAML.
type Loader struct{}

// NewLoader creates a new YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads and validates the pipeline at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading YAML pipeline config.", "path", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	m, err := Parse(src)
	if err != nil {
		return nil, config.WithPath(err, path)
	}
	m.Path = path
	return m, nil
}

// Parse decodes a YAML document into a validated model.
func Parse(src []byte) (*config.Model, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	root, err := ctyconv.FromGo(normalize(doc))
	if err != nil {
		return nil, fmt.Errorf("decode pipeline config: %w", err)
	}
	return config.FromValue(root)
}

// normalize rewrites the map[any]any nodes yaml produces for non-string
// keys into string-keyed maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}
