package speech

import (
	"fmt"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

// NewEngine builds the configured engine type.
func NewEngine(cfg configs.TTSConfig, logger *utils.Logger) (Engine, error) {
	switch cfg.Engine {
	case "edge":
		return NewEdgeEngine(cfg.OutputDir, cfg.PlayerCmd, cfg.Voice, logger)
	case "command":
		return NewCommandEngine(cfg.SpeakCmd, logger)
	default:
		return nil, fmt.Errorf("unknown speech engine type %q", cfg.Engine)
	}
}
