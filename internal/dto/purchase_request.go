package dto

import (
	"time"

	"github.com/unipro/procurement/internal/entity"
)

// PurchaseRequestResponse represents a purchase request as exposed via
// transport layers.
type PurchaseRequestResponse struct {
	ID              int64                     `json:"id"`
	Number          string                    `json:"number"`
	ProjectID       int64                     `json:"project_id"`
	RequesterID     int64                     `json:"requester_id"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	Priority        entity.Priority           `json:"priority"`
	Status          entity.Status             `json:"status"`
	TotalAmount     float64                   `json:"total_amount"`
	RequiredDate    *time.Time                `json:"required_date,omitempty"`
	CurrentStage    string                    `json:"current_stage,omitempty"`
	Items           []PRItemResponse          `json:"items"`
	ApprovalHistory []ApprovalHistoryResponse `json:"approval_history"`
	Comments        []PRCommentResponse       `json:"comments"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// PRItemResponse is one line item of a purchase request.
type PRItemResponse struct {
	ID                 int64   `json:"id"`
	MaterialID         int64   `json:"material_id"`
	Quantity           float64 `json:"quantity"`
	Unit               string  `json:"unit"`
	EstimatedUnitPrice float64 `json:"estimated_unit_price"`
	Subtotal           float64 `json:"subtotal"`
	Vendor             string  `json:"vendor,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// ApprovalHistoryResponse is one recorded stage decision.
type ApprovalHistoryResponse struct {
	Stage      string          `json:"stage"`
	ApproverID int64           `json:"approver_id"`
	Decision   entity.Decision `json:"decision"`
	Comment    string          `json:"comment,omitempty"`
	DecidedAt  time.Time       `json:"decided_at"`
}

// PRCommentResponse is one ledger comment.
type PRCommentResponse struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// FromPurchaseRequest maps a stored purchase request onto its response shape.
func FromPurchaseRequest(pr *entity.PurchaseRequest) PurchaseRequestResponse {
	resp := PurchaseRequestResponse{
		ID:              pr.ID,
		Number:          pr.Number,
		ProjectID:       pr.ProjectID,
		RequesterID:     pr.RequesterID,
		Title:           pr.Title,
		Description:     pr.Description,
		Priority:        pr.Priority,
		Status:          pr.Status,
		TotalAmount:     pr.TotalAmount,
		RequiredDate:    pr.RequiredDate,
		CurrentStage:    pr.CurrentStage,
		Items:           make([]PRItemResponse, 0, len(pr.Items)),
		ApprovalHistory: make([]ApprovalHistoryResponse, 0, len(pr.ApprovalHistory)),
		Comments:        make([]PRCommentResponse, 0, len(pr.Comments)),
		CreatedAt:       pr.CreatedAt,
		UpdatedAt:       pr.UpdatedAt,
	}
	for _, item := range pr.Items {
		resp.Items = append(resp.Items, PRItemResponse{
			ID:                 item.ID,
			MaterialID:         item.MaterialID,
			Quantity:           item.Quantity,
			Unit:               item.Unit,
			EstimatedUnitPrice: item.EstimatedUnitPrice,
			Subtotal:           item.Subtotal,
			Vendor:             item.Vendor,
			Notes:              item.Notes,
		})
	}
	for _, entry := range pr.ApprovalHistory {
		resp.ApprovalHistory = append(resp.ApprovalHistory, ApprovalHistoryResponse{
			Stage:      entry.Stage,
			ApproverID: entry.ApproverID,
			Decision:   entry.Decision,
			Comment:    entry.Comment,
			DecidedAt:  entry.DecidedAt,
		})
	}
	for _, comment := range pr.Comments {
		resp.Comments = append(resp.Comments, PRCommentResponse{
			ID:        comment.ID,
			AuthorID:  comment.AuthorID,
			Comment:   comment.Comment,
			CreatedAt: comment.CreatedAt,
		})
	}
	return resp
}
