package company

import (
	"github.com/smallbiznis/plantops/internal/company/repository"
	"github.com/smallbiznis/plantops/internal/company/service"
	"go.uber.org/fx"
)

var Module = fx.Module("company.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
