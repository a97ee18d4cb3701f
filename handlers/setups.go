package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
)

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+strings.ReplaceAll(name, "_", " "))
	}
	return id, nil
}

func (s *Server) CreateSetup(c echo.Context) error {
	var req CreateSetupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.AppName = strings.TrimSpace(req.AppName)
	if req.AppName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "app_name is required")
	}
	if req.Region != "" && s.opts.SupportedRegion != nil && !s.opts.SupportedRegion(req.Region) {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported region "+req.Region)
	}

	setup := &db.DeploymentSetup{
		AppName:     req.AppName,
		Environment: req.Environment,
		Domain:      strings.TrimSpace(req.Domain),
		Region:      req.Region,
	}
	if err := s.store.CreateSetup(c.Request().Context(), setup); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"setup_id":   setup.ID,
		"app_name":   setup.AppName,
		"request_id": requestID(c),
	}).Info("Deployment setup created")
	return c.JSON(http.StatusCreated, setupView(setup))
}

// ListSetups returns every deployment setup, newest first.
func (s *Server) ListSetups(c echo.Context) error {
	setups, err := s.store.ListSetups(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]SetupView, 0, len(setups))
	for i := range setups {
		out = append(out, setupView(&setups[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) GetSetup(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	setup, err := s.store.GetSetup(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, setupView(setup))
}

// CreateConfiguration returns the setup's configuration for the requested
// integration type, creating it on first use.
func (s *Server) CreateConfiguration(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req CreateConfigurationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	it, err := models.ParseIntegrationType(req.IntegrationType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.store.GetSetup(ctx, id); err != nil {
		return err
	}

	cfg, created, err := s.store.FindOrCreateConfiguration(ctx, id, it)
	if err != nil {
		return err
	}
	view, err := s.configurationView(c, cfg)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
		s.logger.WithFields(logrus.Fields{
			"setup_id":         id,
			"configuration_id": cfg.ID,
			"integration_type": it,
		}).Info("Configuration created")
	}
	return c.JSON(code, view)
}

func (s *Server) ListCredentials(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if _, err := s.store.GetSetup(ctx, id); err != nil {
		return err
	}
	creds, err := s.credentials.List(ctx, id)
	if err != nil {
		return err
	}
	out := make([]CredentialView, 0, len(creds))
	for i := range creds {
		out = append(out, credentialView(&creds[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// setupCredential loads the credential named in the path and checks it
// belongs to the setup in the path.
func (s *Server) setupCredential(c echo.Context) (*db.Credential, error) {
	setupID, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	credID, err := parseID(c, "credential_id")
	if err != nil {
		return nil, err
	}
	cred, err := s.store.GetCredential(c.Request().Context(), credID)
	if err != nil {
		return nil, err
	}
	if cred.DeploymentSetupID != setupID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "credential not found")
	}
	return cred, nil
}

func (s *Server) RevealCredential(c echo.Context) error {
	cred, err := s.setupCredential(c)
	if err != nil {
		return err
	}
	value, err := s.credentials.Reveal(c.Request().Context(), cred.ID)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"setup_id":      cred.DeploymentSetupID,
		"credential_id": cred.ID,
		"request_id":    requestID(c),
		"remote_ip":     c.RealIP(),
	}).Warn("Credential value disclosed over the API")

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, map[string]any{
		"id":              cred.ID,
		"service":         cred.Service,
		"credential_type": cred.CredentialType,
		"value":           value,
	})
}

func (s *Server) DeactivateCredential(c echo.Context) error {
	cred, err := s.setupCredential(c)
	if err != nil {
		return err
	}
	if err := s.credentials.Deactivate(c.Request().Context(), cred.ID); err != nil {
		return err
	}
	cred.Active = false
	return c.JSON(http.StatusOK, credentialView(cred))
}

func (s *Server) Health(c echo.Context) error {
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request().Context()); err != nil {
			s.logger.Errorf("Health check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
