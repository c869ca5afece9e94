package purchaserequest

import "go.uber.org/fx"

// Module provides the approval engine to Fx.
var Module = fx.Provide(NewService)
