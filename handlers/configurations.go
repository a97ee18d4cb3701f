package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/surajsub/deployassist/db"
	"github.com/surajsub/deployassist/wizard"
	"github.com/surajsub/deployassist/workflows"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
)

type completeStepRequest struct {
	StepData map[string]any `json:"step_data"`
}

func (s *Server) configurationView(c echo.Context, cfg *db.Configuration) (ConfigurationView, error) {
	ctx := c.Request().Context()
	current, err := s.wizard.CurrentStep(ctx, cfg.ID)
	if err != nil {
		return ConfigurationView{}, err
	}
	tasks, err := s.store.ListTasks(ctx, cfg.ID)
	if err != nil {
		return ConfigurationView{}, err
	}
	view := ConfigurationView{
		ID:                   cfg.ID,
		DeploymentSetupID:    cfg.DeploymentSetupID,
		IntegrationType:      cfg.IntegrationType,
		Status:               cfg.Status,
		CompletionPercentage: cfg.CompletionPercentage,
		CurrentStep:          current,
		TotalSteps:           wizard.TotalSteps(cfg.IntegrationType),
		ErrorMessage:         cfg.ErrorMessage,
		CompletedAt:          cfg.CompletedAt,
		TemplateID:           cfg.TemplateID,
		Tasks:                make([]TaskView, 0, len(tasks)),
	}
	for i := range tasks {
		view.Tasks = append(view.Tasks, taskView(&tasks[i]))
	}
	return view, nil
}

func (s *Server) loadConfiguration(c echo.Context) (*db.Configuration, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	return s.store.GetConfiguration(c.Request().Context(), id)
}

func (s *Server) GetConfiguration(c echo.Context) error {
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	view, err := s.configurationView(c, cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) stepNumber(c echo.Context, cfg *db.Configuration) (int, error) {
	n, err := strconv.Atoi(c.Param("step"))
	total := wizard.TotalSteps(cfg.IntegrationType)
	if err != nil || n < 1 || n > total {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "step must be between 1 and "+strconv.Itoa(total))
	}
	return n, nil
}

func (s *Server) GetStep(c echo.Context) error {
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	n, err := s.stepNumber(c, cfg)
	if err != nil {
		return err
	}
	data, err := s.wizard.StepData(c.Request().Context(), cfg.ID, n)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StepView{
		Step:       n,
		StepKey:    wizard.StepKey(cfg.IntegrationType, n),
		TotalSteps: wizard.TotalSteps(cfg.IntegrationType),
		Fields:     wizard.FieldNames(cfg.IntegrationType, n),
		Data:       redact(data),
	})
}

// CompleteStep submits one wizard step. A dispatch failure after the final
// step is reported through the configuration's status, not the response code.
func (s *Server) CompleteStep(c echo.Context) error {
	ctx := c.Request().Context()
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid step")
	}
	var req completeStepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	saved, err := s.wizard.CompleteStep(ctx, cfg.ID, n, req.StepData)
	if err != nil && !saved {
		return err
	}
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"configuration_id": cfg.ID,
			"request_id":       requestID(c),
		}).Errorf("Step saved but provisioning was not scheduled: %v", err)
	}

	cfg, err = s.store.GetConfiguration(ctx, cfg.ID)
	if err != nil {
		return err
	}
	view, err := s.configurationView(c, cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) ListInstructions(c echo.Context) error {
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	out, err := s.store.ListInstructions(c.Request().Context(), cfg.ID)
	if err != nil {
		return err
	}
	if out == nil {
		out = []db.Instruction{}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) CompleteInstruction(c echo.Context) error {
	cfgID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	insID, err := parseID(c, "instruction_id")
	if err != nil {
		return err
	}
	ins, err := s.store.CompleteInstruction(c.Request().Context(), cfgID, insID, s.opts.Now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ins)
}

func (s *Server) RetryConfiguration(c echo.Context) error {
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	if err := s.wizard.Retry(c.Request().Context(), cfg.ID); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"configuration_id": cfg.ID,
		"request_id":       requestID(c),
	}).Info("Provisioning retry requested")
	return c.JSON(http.StatusAccepted, map[string]string{
		"configuration_id": cfg.ID.String(),
		"status":           "in_progress",
	})
}

// GetWorkflowStatus describes the latest finalize workflow run for the
// configuration.
func (s *Server) GetWorkflowStatus(c echo.Context) error {
	cfg, err := s.loadConfiguration(c)
	if err != nil {
		return err
	}
	temporal := s.opts.Temporal()
	if temporal == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Temporal client not available"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	workflowID := workflows.WorkflowID(cfg.ID.String())
	resp, err := temporal.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no workflow has run for this configuration")
		}
		s.logger.WithField("workflow_id", workflowID).Errorf("Error describing workflow: %v", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Unable to retrieve workflow status"})
	}

	info := resp.GetWorkflowExecutionInfo()
	out := WorkflowStatus{
		WorkflowID: workflowID,
		RunID:      info.GetExecution().GetRunId(),
		Status:     enumspb.WorkflowExecutionStatus_name[int32(info.GetStatus())],
	}
	if ts := info.GetStartTime(); ts != nil {
		start := ts.AsTime()
		out.StartTime = &start
		end := s.opts.Now()
		if closed := info.GetCloseTime(); closed != nil && info.GetStatus() != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
			end = closed.AsTime()
			out.CloseTime = &end
		}
		out.Duration = end.Sub(start).String()
	}
	return c.JSON(http.StatusOK, out)
}
