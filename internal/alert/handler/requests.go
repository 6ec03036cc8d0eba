package handler

import (
	"strings"

	"govern/internal/alert"
	"govern/internal/entity"
	"govern/pkg/httputil"
)

const maxBatchSize = 500

// EvaluateRequest is the HTTP request body for POST /evaluate/{entityType}.
type EvaluateRequest struct {
	EntityID string          `json:"entity_id"`
	Data     entity.Snapshot `json:"data"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EvaluateRequest) Validate() error {
	r.EntityID = strings.TrimSpace(r.EntityID)
	if r.EntityID == "" {
		return httputil.Validation("entity_id is required")
	}
	if r.Data == nil {
		return httputil.Validation("data is required")
	}
	return nil
}

// BatchRequest is the HTTP request body for POST /evaluate/{entityType}/batch.
type BatchRequest struct {
	Entities []EvaluateRequest `json:"entities"`
}

func (r *BatchRequest) Validate() error {
	if len(r.Entities) == 0 {
		return httputil.Validation("entities is required")
	}
	if len(r.Entities) > maxBatchSize {
		return httputil.Validation("entities exceeds the batch limit")
	}
	for i := range r.Entities {
		if err := r.Entities[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Records converts the batch body to engine input.
func (r *BatchRequest) Records() []alert.EntityRecord {
	records := make([]alert.EntityRecord, 0, len(r.Entities))
	for _, e := range r.Entities {
		records = append(records, alert.EntityRecord{ID: e.EntityID, Data: e.Data})
	}
	return records
}

// ResolveRequest is the HTTP request body for POST /alerts/{entityID}/resolve.
type ResolveRequest struct {
	EntityType string `json:"entity_type"`
}

func (r *ResolveRequest) Validate() error {
	r.EntityType = strings.TrimSpace(r.EntityType)
	if r.EntityType == "" {
		return httputil.Validation("entity_type is required")
	}
	return nil
}

// CleanupRequest is the HTTP request body for POST /maintenance/cleanup.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

func (r *CleanupRequest) Validate() error {
	if r.RetentionDays <= 0 {
		return httputil.Validation("retention_days must be positive")
	}
	return nil
}
