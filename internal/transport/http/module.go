package http

import (
	"go.uber.org/fx"

	prtransport "github.com/unipro/procurement/internal/transport/http/purchaserequest"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	fx.Provide(NewActorMiddleware),
	prtransport.Module,
)
