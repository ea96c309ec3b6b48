package models

import "time"

// EntityTypeContact is the only entity type currently resolved. The candidate
// table is keyed on it so other CRM entities can join the pipeline later.
const EntityTypeContact = "contact"

// Candidate statuses
const (
	CandidateStatusPending  = "pending"
	CandidateStatusApproved = "approved"
	CandidateStatusRejected = "rejected"
	CandidateStatusMerged   = "merged"
)

// Candidate reasons
const (
	CandidateReasonEmailExact = "email_exact"
	CandidateReasonPhoneExact = "phone_exact"
	CandidateReasonBlockScore = "block+score"
)

// Candidate asserts that two contacts might be the same entity. The pair is
// stored in canonical order (ContactID1 < ContactID2) so the same pair seen
// from either side lands on one row.
type Candidate struct {
	ID         string     `json:"id" db:"id"`
	EntityType string     `json:"entity_type" db:"entity_type"`
	ContactID1 int64      `json:"contact_id_1" db:"contact_id_1"`
	ContactID2 int64      `json:"contact_id_2" db:"contact_id_2"`
	Score      float64    `json:"score" db:"score"`
	Reason     string     `json:"reason" db:"reason"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *string    `json:"resolved_by,omitempty" db:"resolved_by"`
}

// CandidateReview is a candidate joined with both contacts' summaries for the
// operator review surface.
type CandidateReview struct {
	Candidate
	ContactA ContactSummary `json:"contact_a" db:"contact_a"`
	ContactB ContactSummary `json:"contact_b" db:"contact_b"`
}
