package handoff

import (
	"github.com/smallbiznis/domainlink/internal/handoff/ledger"
	"github.com/smallbiznis/domainlink/internal/handoff/service"
	"go.uber.org/fx"
)

var Module = fx.Module("handoff.service",
	fx.Provide(ledger.NewLedger),
	fx.Provide(service.NewService),
)
