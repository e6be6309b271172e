package app

import (
	"fmt"

	"github.com/vk/dsipipe/internal/atlas"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/toolexec"
	"github.com/vk/dsipipe/modules/dsistudio"
	"github.com/vk/dsipipe/modules/fsl"
	"github.com/vk/dsipipe/modules/utility"
)

// CoreModules is the definitive list of the step type modules compiled
// into the dsipipe binary, configured from cfg.
func CoreModules(cfg *Config) ([]registry.Module, error) {
	locator, err := atlas.New(cfg.AtlasDir, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create atlas locator: %w", err)
	}
	runner := &toolexec.Runner{}
	return []registry.Module{
		&utility.Module{},
		&dsistudio.Module{Binary: cfg.DSIStudioBin, Atlases: locator, Runner: runner},
		&fsl.Module{BinDir: cfg.FSLBinDir, Runner: runner},
	}, nil
}
