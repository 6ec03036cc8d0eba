package handler

import (
	"time"

	"govern/internal/alert"
)

// AlertResponse is the wire shape of one alert.
type AlertResponse struct {
	ID                string     `json:"id"`
	RuleID            string     `json:"rule_id"`
	Type              string     `json:"type"`
	Severity          string     `json:"severity"`
	Status            string     `json:"status"`
	Title             string     `json:"title"`
	RelatedEntityID   string     `json:"related_entity_id"`
	RelatedEntityType string     `json:"related_entity_type"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

// EvaluateResponse is the HTTP response for POST /evaluate/{entityType}.
type EvaluateResponse struct {
	Alerts []AlertResponse `json:"alerts"`
}

// BatchResponse is the HTTP response for POST /evaluate/{entityType}/batch.
type BatchResponse struct {
	Processed int             `json:"processed"`
	Errors    int             `json:"errors"`
	Alerts    []AlertResponse `json:"alerts"`
}

// ResolveResponse is the HTTP response for POST /alerts/{entityID}/resolve.
type ResolveResponse struct {
	Resolved int `json:"resolved"`
}

// CleanupResponse is the HTTP response for POST /maintenance/cleanup.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

func fromAlert(a *alert.Alert) AlertResponse {
	return AlertResponse{
		ID:                a.ID.String(),
		RuleID:            a.RuleID.String(),
		Type:              string(a.Type),
		Severity:          string(a.Severity),
		Status:            string(a.Status),
		Title:             a.Title,
		RelatedEntityID:   a.RelatedEntityID,
		RelatedEntityType: a.RelatedEntityType,
		CreatedAt:         a.CreatedAt,
		ResolvedAt:        a.ResolvedAt,
	}
}

func fromAlerts(alerts []*alert.Alert) []AlertResponse {
	out := make([]AlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, fromAlert(a))
	}
	return out
}
