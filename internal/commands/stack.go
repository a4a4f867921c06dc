package commands

import (
	"github.com/ledgersync-dev/ledgersync/internal/config"
	"github.com/ledgersync-dev/ledgersync/internal/normalize"
	"github.com/ledgersync-dev/ledgersync/internal/recon"
	"github.com/ledgersync-dev/ledgersync/internal/store/gormstore"
)

// openStack loads config, connects to the database and wires the pipeline.
// Callers must Close the returned store.
func openStack(configPath string) (*config.Config, *gormstore.Store, *recon.Runner, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := gormstore.Open(cfg.Database.URI())
	if err != nil {
		return nil, nil, nil, err
	}

	registry := normalize.DefaultRegistry(normalize.SettledDatePolicy(cfg.Matching.SettledDatePolicy))
	matcher := recon.NewMatcher(cfg.Matching.WindowDays)
	runner := recon.NewRunner(st, registry, matcher)

	return cfg, st, runner, nil
}
