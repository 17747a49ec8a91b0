// Package network assembles an in-process settlement network: storage, event bus,
// partner bank directory, shadow ledger, settlement engine and the transfer service.
package network

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/pamilerinsimon03/WemaTrust/internal/app"
	"github.com/pamilerinsimon03/WemaTrust/internal/bankdir"
	"github.com/pamilerinsimon03/WemaTrust/internal/engine"
	"github.com/pamilerinsimon03/WemaTrust/internal/events"
	"github.com/pamilerinsimon03/WemaTrust/internal/health"
	"github.com/pamilerinsimon03/WemaTrust/internal/ledger"
	"github.com/pamilerinsimon03/WemaTrust/internal/notify"
	"github.com/pamilerinsimon03/WemaTrust/internal/seed"
	"github.com/pamilerinsimon03/WemaTrust/internal/store"
)

// Options configures Build. Zero values fall back to an in-memory repository, the
// embedded seed fixture and the default engine configuration.
type Options struct {
	Repository      store.Repository
	Fixture         *seed.Fixture
	Engine          engine.Config
	EventBufferSize int
	Rand            *rand.Rand
	Logger          *slog.Logger
}

// Network holds the wired components. Call Start to begin settling and Close to stop.
type Network struct {
	Repository store.Repository
	Bus        *events.Bus
	Banks      *bankdir.Directory
	Ledger     *ledger.Ledger
	Engine     *engine.Engine
	Service    *app.Service
	Notifier   *notify.Notifier
	Classifier *health.Classifier
	Seeded     seed.Result

	logger *slog.Logger
}

func Build(ctx context.Context, opts Options) (*Network, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := opts.Repository
	if repo == nil {
		repo = store.NewMemoryRepository()
	}
	fixture := opts.Fixture
	if fixture == nil {
		var err error
		if fixture, err = seed.Default(); err != nil {
			return nil, fmt.Errorf("load default seed: %w", err)
		}
	}
	cfg := opts.Engine
	if cfg == (engine.Config{}) {
		cfg = engine.DefaultConfig()
	}

	bus := events.NewBus(opts.EventBufferSize, logger)
	banks := bankdir.New(repo, bus)

	seeded, err := seed.Apply(ctx, fixture, repo, banks, logger)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("apply seed: %w", err)
	}

	l := ledger.New(repo)
	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.Rand != nil {
		engineOpts = append(engineOpts, engine.WithRand(opts.Rand))
	}
	e, err := engine.New(cfg, l, banks, bus, engineOpts...)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("create settlement engine: %w", err)
	}

	return &Network{
		Repository: repo,
		Bus:        bus,
		Banks:      banks,
		Ledger:     l,
		Engine:     e,
		Service:    app.NewService(l, e, banks, bus, logger),
		Notifier:   notify.NewNotifier(l, nil, logger),
		Classifier: health.NewClassifier(banks, e, logger),
		Seeded:     seeded,
		logger:     logger,
	}, nil
}

// Start launches the settlement loop and the notifier. Both stop when ctx is cancelled.
func (n *Network) Start(ctx context.Context) error {
	if err := n.Engine.Start(ctx); err != nil {
		return fmt.Errorf("start settlement engine: %w", err)
	}
	go func() {
		if err := n.Notifier.Run(ctx, n.Bus); err != nil {
			n.logger.Error("notifier stopped", "error", err)
		}
	}()
	return nil
}

// Close stops the engine, then closes the bus so every subscriber drains and exits.
func (n *Network) Close() {
	n.Engine.Stop()
	n.Bus.Close()
}
