package purchaserequest

import (
	"go.uber.org/fx"

	"github.com/labstack/echo/v4"
)

// Module wires HTTP purchase request handlers.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler, authn echo.MiddlewareFunc) {
		Register(e, h, authn)
	}),
)
