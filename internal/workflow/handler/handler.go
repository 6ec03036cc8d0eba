package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"govern/internal/rule"
	"govern/internal/workflow"
	"govern/pkg/domain"
	"govern/pkg/httputil"
	"govern/pkg/requestcontext"
)

// Engine defines the trigger engine operations the handler exposes.
type Engine interface {
	HandleEvent(ctx context.Context, event workflow.Event) (*workflow.Execution, error)
}

// Approvals defines the approval operations the handler exposes.
type Approvals interface {
	Approve(ctx context.Context, approvalID domain.ApprovalID, decision workflow.StepStatus, comments string) (*workflow.Execution, error)
}

// Handler wires workflow trigger endpoints to the engine, approval service,
// and authoring stores.
type Handler struct {
	engine    Engine
	approvals Approvals
	rules     workflow.TriggerRuleStore
	templates workflow.TemplateStore
	logger    *slog.Logger
}

// New constructs a workflow handler with its dependencies.
func New(engine Engine, approvals Approvals, rules workflow.TriggerRuleStore, templates workflow.TemplateStore, logger *slog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		approvals: approvals,
		rules:     rules,
		templates: templates,
		logger:    logger,
	}
}

// Register mounts workflow endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.HandleEvent)
	r.Post("/approvals/{approvalID}", h.HandleApproval)

	r.Route("/trigger-rules", func(r chi.Router) {
		r.Post("/", h.HandleCreateRule)
		r.Get("/", h.HandleListRules)
		r.Get("/{ruleID}", h.HandleGetRule)
		r.Put("/{ruleID}", h.HandleUpdateRule)
		r.Delete("/{ruleID}", h.HandleDeleteRule)
	})

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.HandleCreateTemplate)
		r.Get("/", h.HandleListTemplates)
	})
}

// HandleEvent handles POST /events requests: entity-change intake for trigger
// dispatch.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	exec, err := h.engine.HandleEvent(ctx, req.Event())
	if err != nil {
		var cfgErr *rule.ConfigError
		if errors.As(err, &cfgErr) {
			httputil.WriteError(w, httputil.Validation(cfgErr.Reason))
			return
		}
		h.logger.ErrorContext(ctx, "event dispatch failed",
			"request_id", requestID,
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
			"trigger", req.Trigger,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "event dispatched",
		"request_id", requestID,
		"entity_type", req.EntityType,
		"entity_id", req.EntityID,
		"trigger", req.Trigger,
		"started", exec != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	resp := EventResponse{Started: exec != nil}
	if exec != nil {
		resp.Execution = fromExecution(exec)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleApproval handles POST /approvals/{approvalID} requests.
func (h *Handler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	approvalID, err := domain.ParseApprovalID(chi.URLParam(r, "approvalID"))
	if err != nil {
		httputil.WriteError(w, httputil.Validation("approval id must be a UUID"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ApprovalRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	exec, err := h.approvals.Approve(ctx, approvalID, workflow.StepStatus(req.Decision), req.Comments)
	if err != nil {
		h.logger.ErrorContext(ctx, "approval failed",
			"request_id", requestID,
			"approval_id", approvalID,
			"decision", req.Decision,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "approval recorded",
		"request_id", requestID,
		"approval_id", approvalID,
		"decision", req.Decision,
		"execution_status", exec.Status(),
	)

	httputil.WriteJSON(w, http.StatusOK, fromExecution(exec))
}

// HandleCreateRule handles POST /trigger-rules requests.
func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TriggerRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	newRule := req.ToRule(domain.NewTriggerRuleID())
	if err := h.rules.Create(ctx, newRule); err != nil {
		h.writeRuleError(w, r, "trigger rule create failed", err)
		return
	}

	h.logger.InfoContext(ctx, "trigger rule created",
		"request_id", requestID,
		"trigger_rule_id", newRule.ID,
		"entity_type", newRule.EntityType,
		"trigger", newRule.Trigger,
		"priority", newRule.Priority,
	)

	httputil.WriteJSON(w, http.StatusCreated, fromTriggerRule(newRule))
}

// HandleListRules handles GET /trigger-rules requests.
func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		h.writeRuleError(w, r, "trigger rule list failed", err)
		return
	}

	resp := TriggerRuleListResponse{Rules: make([]TriggerRuleResponse, 0, len(rules))}
	for _, tr := range rules {
		resp.Rules = append(resp.Rules, fromTriggerRule(tr))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetRule handles GET /trigger-rules/{ruleID} requests.
func (h *Handler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.triggerRuleID(w, r)
	if !ok {
		return
	}

	found, err := h.rules.Get(r.Context(), id)
	if err != nil {
		h.writeRuleError(w, r, "trigger rule get failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromTriggerRule(found))
}

// HandleUpdateRule handles PUT /trigger-rules/{ruleID} requests.
func (h *Handler) HandleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.triggerRuleID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[TriggerRuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated := req.ToRule(id)
	if err := h.rules.Update(ctx, updated); err != nil {
		h.writeRuleError(w, r, "trigger rule update failed", err)
		return
	}

	h.logger.InfoContext(ctx, "trigger rule updated",
		"request_id", requestID,
		"trigger_rule_id", id,
		"active", updated.Active,
	)

	httputil.WriteJSON(w, http.StatusOK, fromTriggerRule(updated))
}

// HandleDeleteRule handles DELETE /trigger-rules/{ruleID} requests.
func (h *Handler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.triggerRuleID(w, r)
	if !ok {
		return
	}

	if err := h.rules.Delete(r.Context(), id); err != nil {
		h.writeRuleError(w, r, "trigger rule delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateTemplate handles POST /workflows requests.
func (h *Handler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tmpl := req.ToTemplate(domain.NewWorkflowID())
	if err := h.templates.Create(ctx, tmpl); err != nil {
		h.writeRuleError(w, r, "template create failed", err)
		return
	}

	h.logger.InfoContext(ctx, "workflow template created",
		"request_id", requestID,
		"workflow_id", tmpl.ID,
		"approvers", len(tmpl.Approvers),
	)

	httputil.WriteJSON(w, http.StatusCreated, fromTemplate(tmpl))
}

// HandleListTemplates handles GET /workflows requests.
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		h.writeRuleError(w, r, "template list failed", err)
		return
	}

	resp := TemplateListResponse{Workflows: make([]TemplateResponse, 0, len(templates))}
	for _, tmpl := range templates {
		resp.Workflows = append(resp.Workflows, fromTemplate(tmpl))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) triggerRuleID(w http.ResponseWriter, r *http.Request) (domain.TriggerRuleID, bool) {
	id, err := domain.ParseTriggerRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, httputil.Validation("trigger rule id must be a UUID"))
		return domain.TriggerRuleID{}, false
	}
	return id, true
}

// writeRuleError maps configuration errors to 400s before falling back to the
// sentinel mapping.
func (h *Handler) writeRuleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()

	var cfgErr *rule.ConfigError
	if errors.As(err, &cfgErr) {
		httputil.WriteError(w, httputil.Validation(cfgErr.Reason))
		return
	}

	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
