package scheduler

import (
	"context"

	appconfig "github.com/smallbiznis/domainlink/internal/config"
	"go.uber.org/fx"
)

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{RunInterval: cfg.SweepInterval}
}

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(StartSweeper),
)

func StartSweeper(lc fx.Lifecycle, sweeper *Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sweeper.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
