// Package atlas finds DSI Studio atlas volumes under the DSIDIR installation.
package atlas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EnvDir names the environment variable holding the DSI Studio directory.
const EnvDir = "DSIDIR"

// ErrNoAtlasDir is returned when no DSI Studio directory is configured.
var ErrNoAtlasDir = errors.New(EnvDir + " is not set; atlas regions cannot be resolved")

// searchDirs are tried in order below the base directory.
var searchDirs = []string{"atlas", "."}

// Locator resolves atlas names to <dir>/<atlas>.nii.gz and remembers hits.
// It is safe for concurrent use.
type Locator struct {
	base  string
	cache *lru.Cache[string, string]
}

// New returns a Locator rooted at base. An empty base yields a Locator whose
// every lookup fails with ErrNoAtlasDir.
func New(base string, cacheSize int) (*Locator, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create atlas cache: %w", err)
	}
	return &Locator{base: base, cache: cache}, nil
}

// Locate returns the volume file for atlas.
func (l *Locator) Locate(atlas string) (string, error) {
	if l.base == "" {
		return "", ErrNoAtlasDir
	}
	if atlas == "" || filepath.Base(atlas) != atlas {
		return "", fmt.Errorf("invalid atlas name %q", atlas)
	}
	if p, ok := l.cache.Get(atlas); ok {
		return p, nil
	}
	for _, sub := range searchDirs {
		p := filepath.Join(l.base, sub, atlas+".nii.gz")
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			l.cache.Add(atlas, p)
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown atlas %q: no %s.nii.gz under %s", atlas, atlas, l.base)
}
