package app

import (
	"go.uber.org/fx"

	"github.com/unipro/procurement/internal/cache"
	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/database"
	"github.com/unipro/procurement/internal/identity"
	"github.com/unipro/procurement/internal/logger"
	"github.com/unipro/procurement/internal/messaging"
	"github.com/unipro/procurement/internal/notification"
	"github.com/unipro/procurement/internal/observability"
	repositorypr "github.com/unipro/procurement/internal/repository/purchaserequest"
	grpcserver "github.com/unipro/procurement/internal/server/grpc"
	httpserver "github.com/unipro/procurement/internal/server/http"
	servicepr "github.com/unipro/procurement/internal/service/purchaserequest"
	"github.com/unipro/procurement/internal/stage"
	transporthttp "github.com/unipro/procurement/internal/transport/http"
	"github.com/unipro/procurement/internal/worker"
	workerpr "github.com/unipro/procurement/internal/worker/purchaserequest"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	identity.Module,
	stage.Module,
	notification.Module,
	repositorypr.Module,
	servicepr.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// GRPC wires the gRPC server on top of the core modules.
var GRPC = fx.Options(
	Core,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerpr.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
