package handlers

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewEcho returns an echo instance with the service middleware and every
// route registered.
func NewEcho(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	e.Use(RequestIDMiddleware)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(RateLimit(s.opts.RateLimit, s.opts.RateBurst))
	RegisterRoutes(e, s)
	return e
}

func RegisterRoutes(e *echo.Echo, s *Server) {
	admin := AdminOnly(s.opts.RequireAdmin, s.opts.AdminToken)

	e.GET("/healthz", s.Health)
	gatherer := s.opts.Gatherer
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")

	v1.GET("/setups", s.ListSetups)
	v1.POST("/setups", s.CreateSetup)
	v1.GET("/setups/:id", s.GetSetup)
	v1.POST("/setups/:id/configurations", s.CreateConfiguration)
	v1.GET("/setups/:id/credentials", s.ListCredentials)
	v1.POST("/setups/:id/credentials/:credential_id/reveal", s.RevealCredential, admin)
	v1.POST("/setups/:id/credentials/:credential_id/deactivate", s.DeactivateCredential, admin)

	v1.GET("/configurations/:id", s.GetConfiguration)
	v1.GET("/configurations/:id/steps/:step", s.GetStep)
	v1.PUT("/configurations/:id/steps/:step", s.CompleteStep)
	v1.GET("/configurations/:id/instructions", s.ListInstructions)
	v1.POST("/configurations/:id/instructions/:instruction_id/complete", s.CompleteInstruction)
	v1.GET("/configurations/:id/workflow", s.GetWorkflowStatus)
	v1.POST("/configurations/:id/retry", s.RetryConfiguration, admin)
	v1.POST("/configurations/:id/template", s.ApplyTemplate)

	v1.GET("/templates", s.ListTemplates)
	v1.POST("/templates", s.CreateTemplate)
	v1.GET("/templates/:id", s.GetTemplate)
}
