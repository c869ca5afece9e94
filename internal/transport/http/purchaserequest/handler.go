package purchaserequest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unipro/procurement/internal/dto"
	"github.com/unipro/procurement/internal/entity"
	"github.com/unipro/procurement/internal/identity"
	"github.com/unipro/procurement/internal/presentation/http/response"
	service "github.com/unipro/procurement/internal/service/purchaserequest"
	"github.com/unipro/procurement/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/unipro/procurement/transport/http/purchaserequest")

// Handler exposes purchase request endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a purchase request Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance. Every route requires a
// resolved actor.
func Register(e *echo.Echo, h *Handler, authn echo.MiddlewareFunc) {
	g := e.Group("/purchase-requests", authn)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.getByID)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/comments", h.addComment)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	actor, ok := identity.ActorFromContext(c.Request().Context())
	if !ok {
		return b.WithError(errorbank.Unauthenticated("missing actor identity")).Build()
	}

	var payload struct {
		ProjectID    int64      `json:"project_id"`
		Title        string     `json:"title"`
		Description  string     `json:"description"`
		Priority     string     `json:"priority"`
		RequiredDate *time.Time `json:"required_date"`
		Items        []struct {
			MaterialID         int64   `json:"material_id"`
			Quantity           float64 `json:"quantity"`
			Unit               string  `json:"unit"`
			EstimatedUnitPrice float64 `json:"estimated_unit_price"`
			Vendor             string  `json:"vendor"`
			Notes              string  `json:"notes"`
		} `json:"items"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	draft := service.Draft{
		ProjectID:    payload.ProjectID,
		Title:        payload.Title,
		Description:  payload.Description,
		Priority:     entity.Priority(payload.Priority),
		RequiredDate: payload.RequiredDate,
	}
	for _, item := range payload.Items {
		draft.Items = append(draft.Items, service.DraftItem{
			MaterialID:         item.MaterialID,
			Quantity:           item.Quantity,
			Unit:               item.Unit,
			EstimatedUnitPrice: item.EstimatedUnitPrice,
			Vendor:             item.Vendor,
			Notes:              item.Notes,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase-requests.create", trace.WithAttributes(
		attribute.Int64("project.id", payload.ProjectID),
	))
	defer span.End()

	pr, err := h.svc.Submit(ctx, actor, draft)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.FromPurchaseRequest(pr)).Build()
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	actor, ok := identity.ActorFromContext(c.Request().Context())
	if !ok {
		return b.WithError(errorbank.Unauthenticated("missing actor identity")).Build()
	}

	var projectID int64
	if raw := c.QueryParam("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid project_id", errorbank.WithCause(err))).Build()
		}
		projectID = id
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase-requests.list")
	defer span.End()

	prs, err := h.svc.List(ctx, actor, c.QueryParam("filter"), projectID)
	if err != nil {
		return b.WithError(err).Build()
	}

	resp := make([]dto.PurchaseRequestResponse, 0, len(prs))
	for _, pr := range prs {
		resp = append(resp, dto.FromPurchaseRequest(pr))
	}
	return b.WithData(resp).WithMeta("count", len(resp)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase-requests.getByID", trace.WithAttributes(attribute.Int64("pr.id", id)))
	defer span.End()

	pr, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromPurchaseRequest(pr)).Build()
}

func (h *Handler) approve(c echo.Context) error {
	return h.decide(c, entity.DecisionApproved)
}

func (h *Handler) reject(c echo.Context) error {
	return h.decide(c, entity.DecisionRejected)
}

func (h *Handler) decide(c echo.Context, decision entity.Decision) error {
	b := response.New(c)

	actor, ok := identity.ActorFromContext(c.Request().Context())
	if !ok {
		return b.WithError(errorbank.Unauthenticated("missing actor identity")).Build()
	}

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Stage   string `json:"stage"`
		Comment string `json:"comment"`
		Reason  string `json:"reason"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.Stage == "" {
		return b.WithError(errorbank.BadRequest("stage is required")).Build()
	}

	comment := payload.Comment
	if decision == entity.DecisionRejected {
		// A rejection must say why; the reason is stored as the entry comment.
		if strings.TrimSpace(payload.Reason) == "" {
			return b.WithError(errorbank.BadRequest("reason is required")).Build()
		}
		comment = payload.Reason
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase-requests.decide", trace.WithAttributes(
		attribute.Int64("pr.id", id),
		attribute.String("pr.stage", payload.Stage),
		attribute.String("pr.decision", string(decision)),
	))
	defer span.End()

	pr, err := h.svc.Decide(ctx, actor, id, payload.Stage, decision, comment)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.FromPurchaseRequest(pr)).Build()
}

func (h *Handler) addComment(c echo.Context) error {
	b := response.New(c)

	actor, ok := identity.ActorFromContext(c.Request().Context())
	if !ok {
		return b.WithError(errorbank.Unauthenticated("missing actor identity")).Build()
	}

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload struct {
		Comment string `json:"comment"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "purchase-requests.addComment", trace.WithAttributes(attribute.Int64("pr.id", id)))
	defer span.End()

	comment, err := h.svc.AddComment(ctx, actor, id, payload.Comment)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.PRCommentResponse{
		ID:        comment.ID,
		AuthorID:  comment.AuthorID,
		Comment:   comment.Comment,
		CreatedAt: comment.CreatedAt,
	}).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}
