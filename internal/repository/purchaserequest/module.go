package purchaserequest

import "go.uber.org/fx"

// Module provides the purchase request repository to Fx.
var Module = fx.Provide(NewRepository)
