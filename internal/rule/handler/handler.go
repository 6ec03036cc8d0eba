package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"govern/internal/rule"
	"govern/pkg/domain"
	"govern/pkg/httputil"
	"govern/pkg/requestcontext"
)

// Handler wires the rule authoring CRUD surface to a rule store.
type Handler struct {
	store  rule.Store
	logger *slog.Logger
}

// New constructs a rule handler with its dependencies.
func New(store rule.Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Register mounts rule authoring endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{ruleID}", h.HandleGet)
		r.Put("/{ruleID}", h.HandleUpdate)
		r.Delete("/{ruleID}", h.HandleDelete)
	})
}

// HandleCreate handles POST /rules requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	newRule := req.ToRule(domain.NewRuleID(), requestcontext.Now(ctx))
	if err := h.store.Create(ctx, newRule); err != nil {
		h.writeStoreError(w, r, "rule create failed", newRule.ID, err)
		return
	}

	h.logger.InfoContext(ctx, "rule created",
		"request_id", requestID,
		"rule_id", newRule.ID,
		"entity_type", newRule.EntityType,
		"trigger_type", newRule.TriggerType,
	)

	httputil.WriteJSON(w, http.StatusCreated, fromRule(newRule))
}

// HandleList handles GET /rules requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, r, "rule list failed", domain.RuleID{}, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Rules: fromRules(rules)})
}

// HandleGet handles GET /rules/{ruleID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	found, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, "rule get failed", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRule(found))
}

// HandleUpdate handles PUT /rules/{ruleID} requests. Updates are full
// replacements; the stored creation time is preserved.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[RuleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	existing, err := h.store.Get(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, "rule update failed", id, err)
		return
	}

	updated := req.ToRule(id, requestcontext.Now(ctx))
	updated.CreatedAt = existing.CreatedAt
	if updated.CreatedBy.IsNil() {
		updated.CreatedBy = existing.CreatedBy
	}

	if err := h.store.Update(ctx, updated); err != nil {
		h.writeStoreError(w, r, "rule update failed", id, err)
		return
	}

	h.logger.InfoContext(ctx, "rule updated",
		"request_id", requestID,
		"rule_id", id,
		"active", updated.Active,
	)

	httputil.WriteJSON(w, http.StatusOK, fromRule(updated))
}

// HandleDelete handles DELETE /rules/{ruleID} requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		h.writeStoreError(w, r, "rule delete failed", id, err)
		return
	}

	h.logger.InfoContext(ctx, "rule deleted",
		"request_id", requestcontext.RequestID(ctx),
		"rule_id", id,
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (domain.RuleID, bool) {
	id, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, httputil.Validation("rule id must be a UUID"))
		return domain.RuleID{}, false
	}
	return id, true
}

// writeStoreError maps rule configuration errors to 400s before falling back
// to the sentinel mapping.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, msg string, id domain.RuleID, err error) {
	ctx := r.Context()

	var cfgErr *rule.ConfigError
	if errors.As(err, &cfgErr) {
		httputil.WriteError(w, httputil.Validation(cfgErr.Reason))
		return
	}

	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"rule_id", id,
		"error", err,
	)
	httputil.WriteError(w, err)
}
