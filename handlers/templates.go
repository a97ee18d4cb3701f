package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/models"
	"github.com/surajsub/deployassist/wizard"
)

// ListTemplates supports ?integration_type= and ?public=true.
func (s *Server) ListTemplates(c echo.Context) error {
	var filter db.TemplateFilter
	if raw := c.QueryParam("integration_type"); raw != "" {
		it, err := models.ParseIntegrationType(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.IntegrationType = it
	}
	if raw := c.QueryParam("public"); raw != "" {
		public, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "public must be true or false")
		}
		filter.PublicOnly = public
	}

	templates, err := s.store.ListTemplates(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	out := make([]TemplateView, 0, len(templates))
	for i := range templates {
		view, err := templateView(&templates[i])
		if err != nil {
			return err
		}
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) CreateTemplate(c echo.Context) error {
	var req CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	it, err := models.ParseIntegrationType(req.IntegrationType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := wizard.ValidateTemplate(it, req.TemplateData); err != nil {
		return err
	}
	encoded, err := db.EncodeObject(req.TemplateData)
	if err != nil {
		return err
	}

	tpl := &db.ConfigurationTemplate{
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		IntegrationType: it,
		TemplateData:    encoded,
		Public:          req.Public,
	}
	if err := s.store.CreateTemplate(c.Request().Context(), tpl); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"template_id":      tpl.ID,
		"integration_type": it,
		"request_id":       requestID(c),
	}).Info("Configuration template created")

	view, err := templateView(tpl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) GetTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	tpl, err := s.store.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return err
	}
	view, err := templateView(tpl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ApplyTemplate links a template to a configuration so unanswered steps are
// prefilled from it.
func (s *Server) ApplyTemplate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ApplyTemplateRequest
	if err := c.Bind(&req); err != nil || req.TemplateID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "template_id is required")
	}
	cfg, err := s.wizard.ApplyTemplate(c.Request().Context(), id, req.TemplateID)
	if err != nil {
		return err
	}
	view, err := s.configurationView(c, cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}
