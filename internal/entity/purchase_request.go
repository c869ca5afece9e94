package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Status represents the lifecycle state of a purchase request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Priority represents how urgently a purchase request should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Decision is the outcome recorded for a single approval stage.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// PurchaseRequest is a procurement request gated by multi-stage approval.
//
// Invariant: Status == StatusPending iff CurrentStage is non-empty; a terminal
// request (approved or rejected) always has an empty CurrentStage. Version is
// bumped on every committed state transition and backs the optimistic
// concurrency check in the repository.
type PurchaseRequest struct {
	bun.BaseModel `bun:"table:purchase_requests"`

	ID           int64      `bun:",pk,autoincrement" json:"id"`
	Number       string     `bun:"number" json:"number"`
	ProjectID    int64      `bun:"project_id" json:"project_id"`
	RequesterID  int64      `bun:"requester_id" json:"requester_id"`
	Title        string     `bun:"title" json:"title"`
	Description  string     `bun:"description" json:"description"`
	Priority     Priority   `bun:"priority" json:"priority"`
	Status       Status     `bun:"status" json:"status"`
	TotalAmount  float64    `bun:"total_amount" json:"total_amount"`
	RequiredDate *time.Time `bun:"required_date,nullzero" json:"required_date,omitempty"`
	CurrentStage string     `bun:"current_stage,nullzero" json:"current_stage,omitempty"`
	Version      int64      `bun:"version" json:"version"`

	Items           []*PRItem               `bun:"rel:has-many,join:id=purchase_request_id" json:"items,omitempty"`
	ApprovalHistory []*ApprovalHistoryEntry `bun:"rel:has-many,join:id=purchase_request_id" json:"approval_history,omitempty"`
	Comments        []*PRComment            `bun:"rel:has-many,join:id=purchase_request_id" json:"comments,omitempty"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// Terminal reports whether the request has reached a final decision.
func (pr *PurchaseRequest) Terminal() bool {
	return pr.Status != StatusPending
}

// RecomputeTotal derives item subtotals and the request total from scratch.
// TotalAmount is never edited independently; this is the only writer.
func (pr *PurchaseRequest) RecomputeTotal() {
	var total float64
	for _, item := range pr.Items {
		item.Subtotal = item.Quantity * item.EstimatedUnitPrice
		total += item.Subtotal
	}
	pr.TotalAmount = total
}

// PRItem is a single line item on a purchase request.
type PRItem struct {
	bun.BaseModel `bun:"table:pr_items"`

	ID                 int64   `bun:",pk,autoincrement" json:"id"`
	PurchaseRequestID  int64   `bun:"purchase_request_id" json:"purchase_request_id"`
	MaterialID         int64   `bun:"material_id" json:"material_id"`
	Quantity           float64 `bun:"quantity" json:"quantity"`
	Unit               string  `bun:"unit" json:"unit"`
	EstimatedUnitPrice float64 `bun:"estimated_unit_price" json:"estimated_unit_price"`
	Subtotal           float64 `bun:"subtotal" json:"subtotal"`
	Vendor             string  `bun:"vendor" json:"vendor,omitempty"`
	Notes              string  `bun:"notes" json:"notes,omitempty"`
}

// ApprovalHistoryEntry records one decision at one stage. Entries are
// append-only: a stage gets at most one entry, written the moment the
// decision commits.
type ApprovalHistoryEntry struct {
	bun.BaseModel `bun:"table:approval_history"`

	ID                int64     `bun:",pk,autoincrement" json:"id"`
	PurchaseRequestID int64     `bun:"purchase_request_id" json:"purchase_request_id"`
	Stage             string    `bun:"stage" json:"stage"`
	ApproverID        int64     `bun:"approver_id" json:"approver_id"`
	Decision          Decision  `bun:"decision" json:"decision"`
	Comment           string    `bun:"comment" json:"comment,omitempty"`
	DecidedAt         time.Time `bun:"decided_at" json:"decided_at"`
}

// PRComment is an informational note on a purchase request. Comments do not
// participate in the approval state machine and may be added at any time.
type PRComment struct {
	bun.BaseModel `bun:"table:pr_comments"`

	ID                int64     `bun:",pk,autoincrement" json:"id"`
	PurchaseRequestID int64     `bun:"purchase_request_id" json:"purchase_request_id"`
	AuthorID          int64     `bun:"author_id" json:"author_id"`
	Comment           string    `bun:"comment" json:"comment"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}
