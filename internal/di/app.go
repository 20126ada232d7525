package di

import (
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/router"
	"stop-spying-server/internal/usecase/app"
)

type Application struct {
	Router  *router.Router
	UseCase *app.AppUseCase
	Metrics *metrics.Recorder
}

func NewApplication(r *router.Router, appUseCase *app.AppUseCase, recorder *metrics.Recorder) *Application {
	return &Application{
		Router:  r,
		UseCase: appUseCase,
		Metrics: recorder,
	}
}
