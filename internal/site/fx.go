package site

import "go.uber.org/fx"

var Module = fx.Module("site",
	fx.Provide(NewProvider),
	fx.Provide(NewSettings),
)
