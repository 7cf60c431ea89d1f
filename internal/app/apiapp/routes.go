package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/thirdweb-example/unity-iap-server/internal/config"
	validationsvc "github.com/thirdweb-example/unity-iap-server/internal/services/validation"
	"github.com/thirdweb-example/unity-iap-server/internal/transport/http/handlers"
)

type Dependencies struct {
	Pipeline *validationsvc.Service
	Logger   *zap.Logger
	Config   config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	validateHandler := handlers.NewValidateHandler(deps.Pipeline)

	r.Get("/healthz", healthHandler.Get)
	r.Route("/engine", func(r chi.Router) {
		r.Post("/validate", validateHandler.Handle)
	})
}
