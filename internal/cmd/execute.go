package cmd

import (
	"os"

	"github.com/dotcommander/yar/internal/config"
)

// Execute wires commands and runs Cobra.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	defer maybeWriteMemProfile(cfg.CachePath)

	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.Execute(); err != nil {
		maybeWriteMemProfile(cfg.CachePath)
		drainStdin()
		handleError(os.Stderr, err)
		os.Exit(1)
	}
}
