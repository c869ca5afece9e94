package purchaserequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/unipro/procurement/internal/cache"
	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/entity"
	"github.com/unipro/procurement/internal/identity"
	"github.com/unipro/procurement/internal/notification"
	repo "github.com/unipro/procurement/internal/repository/purchaserequest"
	"github.com/unipro/procurement/internal/stage"
	"github.com/unipro/procurement/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/unipro/procurement/service/purchaserequest")

// Store is the request store contract the engine mutates through.
// CompareAndApply is the only write path for approval state.
type Store interface {
	Create(ctx context.Context, pr *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error)
	List(ctx context.Context, f repo.ListFilter) ([]*entity.PurchaseRequest, error)
	CountCreatedInYear(ctx context.Context, year int) (int64, error)
	CompareAndApply(ctx context.Context, id, expectedVersion int64, apply repo.ApplyFunc) (*entity.PurchaseRequest, error)
	AppendComment(ctx context.Context, comment *entity.PRComment) error
}

// Draft is the caller-supplied shape of a new purchase request.
type Draft struct {
	ProjectID    int64
	Title        string
	Description  string
	Priority     entity.Priority
	RequiredDate *time.Time
	Items        []DraftItem
}

// DraftItem is one requested line item.
type DraftItem struct {
	MaterialID         int64
	Quantity           float64
	Unit               string
	EstimatedUnitPrice float64
	Vendor             string
	Notes              string
}

// Service is the approval engine: the sole mutator of purchase request
// approval state.
type Service struct {
	store    Store
	cache    cache.Store
	cacheTTL time.Duration
	policy   stage.Policy
	emitter  *notification.Emitter
	logger   *zap.Logger
	retries  int
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Policy     stage.Policy
	Emitter    *notification.Emitter
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return NewWithStore(p.Repository, p.Cache, p.Policy, p.Emitter, p.Logger, p.Config)
}

// NewWithStore builds a Service on top of any Store implementation.
func NewWithStore(store Store, cacheStore cache.Store, policy stage.Policy, emitter *notification.Emitter, logger *zap.Logger, cfg config.Config) *Service {
	return &Service{
		store:    store,
		cache:    cacheStore,
		cacheTTL: cfg.Cache.DefaultTTL,
		policy:   policy,
		emitter:  emitter,
		logger:   logger,
		retries:  cfg.Approval.DecideRetries,
	}
}

// Submit validates a draft, resolves its approval path, and persists it as a
// pending request sitting at the first stage.
func (s *Service) Submit(ctx context.Context, actor identity.Actor, draft Draft) (*entity.PurchaseRequest, error) {
	ctx, span := serviceTracer.Start(ctx, "ApprovalEngine.Submit", trace.WithAttributes(attribute.Int64("project.id", draft.ProjectID)))
	defer span.End()

	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pr := &entity.PurchaseRequest{
		ProjectID:    draft.ProjectID,
		RequesterID:  actor.ID,
		Title:        strings.TrimSpace(draft.Title),
		Description:  draft.Description,
		Priority:     draft.Priority,
		Status:       entity.StatusPending,
		RequiredDate: draft.RequiredDate,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if pr.Priority == "" {
		pr.Priority = entity.PriorityNormal
	}
	for _, item := range draft.Items {
		pr.Items = append(pr.Items, &entity.PRItem{
			MaterialID:         item.MaterialID,
			Quantity:           item.Quantity,
			Unit:               item.Unit,
			EstimatedUnitPrice: item.EstimatedUnitPrice,
			Vendor:             item.Vendor,
			Notes:              item.Notes,
		})
	}
	pr.RecomputeTotal()

	list, err := s.policy.Resolve(pr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage policy error")
		return nil, errorbank.Internal("failed to resolve approval stages", errorbank.WithCause(err))
	}
	pr.CurrentStage = list.First().Name

	// Numbering reads a count and then inserts, so two concurrent submits can
	// race to the same number. The unique constraint catches the loser; one
	// regeneration covers it.
	for attempt := 0; ; attempt++ {
		number, err := s.nextNumber(ctx, now)
		if err != nil {
			return nil, err
		}
		pr.Number = number

		err = s.store.Create(ctx, pr)
		if err == nil {
			break
		}
		if errors.Is(err, repo.ErrDuplicateNumber) && attempt == 0 {
			s.logger.Debug("purchase request number collision, regenerating", zap.String("number", number))
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, s.mapStoreErr(err, "purchase request not found")
	}

	if err := s.storeInCache(ctx, pr); err != nil {
		s.logger.Warn("purchase request cache write failed", zap.Int64("id", pr.ID), zap.Error(err))
	}

	s.emitter.Emit(ctx, notification.TransitionEvent{
		PRID:       pr.ID,
		Number:     pr.Number,
		EventType:  notification.EventSubmitted,
		Stage:      pr.CurrentStage,
		ActorID:    actor.ID,
		OccurredAt: now,
	})

	return pr, nil
}

// Get retrieves a purchase request by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	ctx, span := serviceTracer.Start(ctx, "ApprovalEngine.Get", trace.WithAttributes(attribute.Int64("pr.id", id)))
	defer span.End()

	if pr, err := s.getFromCache(ctx, id); err == nil {
		return pr, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("purchase request cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	pr, err := s.store.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, s.mapStoreErr(err, "purchase request not found")
	}

	if err := s.storeInCache(ctx, pr); err != nil {
		s.logger.Warn("purchase request cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	return pr, nil
}

// List returns a read-only projection scoped to the caller.
func (s *Service) List(ctx context.Context, actor identity.Actor, filter string, projectID int64) ([]*entity.PurchaseRequest, error) {
	ctx, span := serviceTracer.Start(ctx, "ApprovalEngine.List", trace.WithAttributes(attribute.String("filter", filter)))
	defer span.End()

	f := repo.ListFilter{ProjectID: projectID}
	switch filter {
	case "", "all":
	case "my_requests":
		f.RequesterID = actor.ID
	case "pending_approval":
		stg, ok := s.policy.ForRole(actor.Role)
		if !ok {
			// The caller's role decides no stage; their queue is empty.
			return []*entity.PurchaseRequest{}, nil
		}
		f.Status = entity.StatusPending
		f.CurrentStage = stg.Name
	case "approved":
		f.Status = entity.StatusApproved
	case "rejected":
		f.Status = entity.StatusRejected
	default:
		return nil, errorbank.BadRequest("unknown filter", errorbank.WithDetail("filter", filter))
	}

	prs, err := s.store.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, s.mapStoreErr(err, "purchase request not found")
	}
	return prs, nil
}

// Decide records an approve/reject decision for the named stage and advances
// or terminates the state machine. Preconditions are checked in a fixed
// order, each its own failure mode: existence, still pending, stage matches,
// actor's role authorized. The transition itself is a single atomic
// compare-and-apply keyed on the version read during validation; a lost race
// is retried internally a bounded number of times before surfacing.
func (s *Service) Decide(ctx context.Context, actor identity.Actor, id int64, stageName string, decision entity.Decision, comment string) (*entity.PurchaseRequest, error) {
	ctx, span := serviceTracer.Start(ctx, "ApprovalEngine.Decide", trace.WithAttributes(
		attribute.Int64("pr.id", id),
		attribute.String("pr.stage", stageName),
		attribute.String("pr.decision", string(decision)),
	))
	defer span.End()

	if decision != entity.DecisionApproved && decision != entity.DecisionRejected {
		return nil, errorbank.BadRequest("unknown decision", errorbank.WithDetail("decision", string(decision)))
	}

	attempts := s.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		updated, err := s.decideOnce(ctx, actor, id, stageName, decision, comment)
		if err != nil {
			if errors.Is(err, repo.ErrVersionConflict) && attempt+1 < attempts {
				s.logger.Debug("decision lost version race, retrying",
					zap.Int64("id", id),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			if errors.Is(err, repo.ErrVersionConflict) {
				span.SetStatus(codes.Error, "version conflict")
				return nil, errorbank.Conflict("purchase request was modified concurrently, refresh and retry", errorbank.WithCause(ErrConcurrentModification))
			}
			return nil, err
		}

		if cacheErr := s.storeInCache(ctx, updated); cacheErr != nil {
			s.logger.Warn("purchase request cache write failed", zap.Int64("id", id), zap.Error(cacheErr))
		}
		s.emitTransition(ctx, actor, updated, stageName, decision)
		return updated, nil
	}

	return nil, errorbank.Conflict("purchase request was modified concurrently, refresh and retry", errorbank.WithCause(ErrConcurrentModification))
}

// decideOnce performs one validate-then-compare-and-apply pass. It returns
// repo.ErrVersionConflict unwrapped so Decide can drive the retry loop.
func (s *Service) decideOnce(ctx context.Context, actor identity.Actor, id int64, stageName string, decision entity.Decision, comment string) (*entity.PurchaseRequest, error) {
	pr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr(err, "purchase request not found")
	}
	if pr.Terminal() {
		return nil, errorbank.Conflict("purchase request already finalized", errorbank.WithCause(ErrAlreadyFinalized))
	}
	if pr.CurrentStage != stageName {
		return nil, errorbank.Conflict("purchase request is not at the requested stage",
			errorbank.WithCause(ErrStageMismatch),
			errorbank.WithDetail("current_stage", pr.CurrentStage),
		)
	}

	list, err := s.policy.Resolve(pr)
	if err != nil {
		return nil, errorbank.Internal("failed to resolve approval stages", errorbank.WithCause(err))
	}
	current, ok := list.ByName(pr.CurrentStage)
	if !ok {
		return nil, errorbank.Internal("current stage missing from approval path", errorbank.WithCause(stage.ErrConfiguration))
	}
	if actor.Role != current.Role {
		// Deliberately does not reveal which role is required.
		return nil, errorbank.Forbidden("not authorized to decide at this stage")
	}

	now := time.Now().UTC()
	updated, err := s.store.CompareAndApply(ctx, id, pr.Version, func(cur *entity.PurchaseRequest) (*entity.ApprovalHistoryEntry, error) {
		entry := &entity.ApprovalHistoryEntry{
			Stage:      stageName,
			ApproverID: actor.ID,
			Decision:   decision,
			Comment:    comment,
			DecidedAt:  now,
		}
		if decision == entity.DecisionRejected {
			cur.Status = entity.StatusRejected
			cur.CurrentStage = ""
			return entry, nil
		}
		if next, hasNext := list.Next(stageName); hasNext {
			cur.CurrentStage = next.Name
		} else {
			cur.Status = entity.StatusApproved
			cur.CurrentStage = ""
		}
		return entry, nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrVersionConflict) {
			return nil, err
		}
		return nil, s.mapStoreErr(err, "purchase request not found")
	}
	return updated, nil
}

// AddComment appends an informational note regardless of approval state.
func (s *Service) AddComment(ctx context.Context, actor identity.Actor, id int64, text string) (*entity.PRComment, error) {
	ctx, span := serviceTracer.Start(ctx, "ApprovalEngine.AddComment", trace.WithAttributes(attribute.Int64("pr.id", id)))
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errorbank.BadRequest("comment text is required")
	}

	pr, err := s.store.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, s.mapStoreErr(err, "purchase request not found")
	}

	comment := &entity.PRComment{
		PurchaseRequestID: pr.ID,
		AuthorID:          actor.ID,
		Comment:           text,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.AppendComment(ctx, comment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, s.mapStoreErr(err, "purchase request not found")
	}

	if err := s.invalidateCache(ctx, pr.ID); err != nil {
		s.logger.Warn("purchase request cache invalidation failed", zap.Int64("id", pr.ID), zap.Error(err))
	}

	return comment, nil
}

func (s *Service) emitTransition(ctx context.Context, actor identity.Actor, pr *entity.PurchaseRequest, decidedStage string, decision entity.Decision) {
	event := notification.TransitionEvent{
		PRID:    pr.ID,
		Number:  pr.Number,
		ActorID: actor.ID,
		Stage:   decidedStage,
	}
	switch {
	case decision == entity.DecisionRejected:
		event.EventType = notification.EventRejected
	case pr.Status == entity.StatusApproved:
		event.EventType = notification.EventApproved
	default:
		event.EventType = notification.EventStageAdvanced
		event.Stage = pr.CurrentStage
	}
	s.emitter.Emit(ctx, event)
}

// nextNumber issues the next project-wide human readable code, PR-YYYY-XXXX.
func (s *Service) nextNumber(ctx context.Context, now time.Time) (string, error) {
	count, err := s.store.CountCreatedInYear(ctx, now.Year())
	if err != nil {
		return "", s.mapStoreErr(err, "purchase request not found")
	}
	return fmt.Sprintf("PR-%d-%04d", now.Year(), count+1), nil
}

func (s *Service) mapStoreErr(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound(notFoundMsg, errorbank.WithCause(err))
	case errors.Is(err, repo.ErrUnavailable):
		return errorbank.Unavailable("request store unavailable", errorbank.WithCause(err))
	case errors.Is(err, repo.ErrVersionConflict):
		return errorbank.Conflict("purchase request was modified concurrently, refresh and retry", errorbank.WithCause(ErrConcurrentModification))
	case errors.Is(err, repo.ErrDuplicateNumber):
		return errorbank.Conflict("purchase request number collision, retry submit", errorbank.WithCause(err))
	default:
		return errorbank.Internal("request store failure", errorbank.WithCause(err))
	}
}

func validateDraft(draft Draft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return errorbank.BadRequest("title is required")
	}
	if draft.ProjectID <= 0 {
		return errorbank.BadRequest("project reference is required")
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return errorbank.BadRequest("unknown priority", errorbank.WithDetail("priority", string(draft.Priority)))
	}
	if len(draft.Items) == 0 {
		return errorbank.BadRequest("at least one item is required")
	}
	for i, item := range draft.Items {
		if item.MaterialID <= 0 {
			return errorbank.BadRequest("item material reference is required", errorbank.WithDetail("item", i))
		}
		if item.Quantity <= 0 {
			return errorbank.BadRequest("item quantity must be positive", errorbank.WithDetail("item", i))
		}
		if item.EstimatedUnitPrice < 0 {
			return errorbank.BadRequest("item estimated price must not be negative", errorbank.WithDetail("item", i))
		}
		if strings.TrimSpace(item.Unit) == "" {
			return errorbank.BadRequest("item unit is required", errorbank.WithDetail("item", i))
		}
	}
	return nil
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("purchase-requests:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var pr entity.PurchaseRequest
	if err := json.Unmarshal(bytes, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (s *Service) storeInCache(ctx context.Context, pr *entity.PurchaseRequest) error {
	if s.cache == nil || pr == nil {
		return nil
	}
	bytes, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(pr.ID), bytes, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, s.cacheKey(id))
}
