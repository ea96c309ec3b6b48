package models

import (
	"encoding/json"
	"time"
)

// MergeMode records how a merge was triggered.
type MergeMode string

const (
	MergeModeManual MergeMode = "manual"
	MergeModeAuto   MergeMode = "auto"
)

// RetentionPolicy controls what happens to absorbed contacts.
type RetentionPolicy string

const (
	// RetentionKeepHistory soft-deletes absorbed contacts (default).
	RetentionKeepHistory RetentionPolicy = "keep_history"
	// RetentionPurge hard-deletes absorbed contacts. Operator opt-in only.
	RetentionPurge RetentionPolicy = "purge"
)

// MergeOptions tunes merge semantics per call.
type MergeOptions struct {
	// ConcatNotes appends absorbed contacts' notes after the survivor's
	// instead of keeping only the survivor's.
	ConcatNotes bool            `json:"concat_notes"`
	Retention   RetentionPolicy `json:"retention,omitempty"`
}

// MergeRecord is the immutable audit trail of one absorbed contact. Created
// exactly once per completed merge, never mutated.
type MergeRecord struct {
	ID          string          `json:"id" db:"id"`
	EntityType  string          `json:"entity_type" db:"entity_type"`
	SurvivorID  int64           `json:"survivor_id" db:"survivor_id"`
	MergedID    int64           `json:"merged_id" db:"merged_id"`
	Score       float64         `json:"score" db:"score"`
	Mode        MergeMode       `json:"mode" db:"mode"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	PerformedBy *string         `json:"performed_by,omitempty" db:"performed_by"`
	PerformedAt time.Time       `json:"performed_at" db:"performed_at"`
}

// MergeContactsRequest is the operator-driven merge entry point.
type MergeContactsRequest struct {
	PrimaryID    int64              `json:"primary_id" validate:"required"`
	DuplicateIDs []int64            `json:"duplicate_ids" validate:"required,min=1,dive,required"`
	Overrides    map[string]*string `json:"overrides,omitempty"`
	Options      *MergeOptions      `json:"options,omitempty"`
}

// MergeContactsResponse reports the surviving contact and the ids absorbed.
type MergeContactsResponse struct {
	PrimaryID int64   `json:"primary_id"`
	Merged    []int64 `json:"merged"`
}

// MergeCandidateResponse reports a candidate-driven merge.
type MergeCandidateResponse struct {
	SurvivorID int64 `json:"survivor_id"`
	MergedID   int64 `json:"merged_id"`
}

// BatchRunRequest drives the batch orchestrator.
type BatchRunRequest struct {
	Days       int  `json:"days"`
	Limit      int  `json:"limit"` // 0 means all
	ChunkSize  int  `json:"chunk_size"`
	RecentOnly bool `json:"recent_only"`
}

// BatchRunResponse summarizes a batch run.
type BatchRunResponse struct {
	Processed         int   `json:"processed"`
	CandidatesCreated int   `json:"candidates_created"`
	MergesExecuted    int   `json:"merges_executed"`
	LastID            int64 `json:"last_id"`
}

// BackfillRequest normalizes an id range without candidate generation.
type BackfillRequest struct {
	FromID int64 `json:"from_id" validate:"required"`
	ToID   int64 `json:"to_id" validate:"required,gtefield=FromID"`
}

// BackfillResponse reports how many contacts were renormalized.
type BackfillResponse struct {
	Processed int `json:"processed"`
}
