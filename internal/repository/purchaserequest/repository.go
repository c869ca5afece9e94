package purchaserequest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/database"
	"github.com/unipro/procurement/internal/entity"
)

var repoTracer = otel.Tracer("github.com/unipro/procurement/repository/purchaserequest")

var (
	// ErrNotFound is returned when a purchase request is missing.
	ErrNotFound = errors.New("purchase request not found")
	// ErrVersionConflict signals a lost optimistic-concurrency race: the
	// stored version no longer matches what the caller read.
	ErrVersionConflict = errors.New("purchase request version conflict")
	// ErrUnavailable wraps transient store failures such as timeouts.
	ErrUnavailable = errors.New("request store unavailable")
	// ErrDuplicateNumber means the generated request number lost a uniqueness
	// race with a concurrent submit. The caller can regenerate and retry.
	ErrDuplicateNumber = errors.New("purchase request number already taken")
)

// ApplyFunc mutates a freshly loaded purchase request inside the
// compare-and-apply transaction and returns the history entry to append, or
// nil when the mutation writes no decision.
type ApplyFunc func(pr *entity.PurchaseRequest) (*entity.ApprovalHistoryEntry, error)

// ListFilter narrows read-only projections. Zero values mean "no constraint".
type ListFilter struct {
	ProjectID    int64
	RequesterID  int64
	Status       entity.Status
	CurrentStage string
}

// Repository is the durable request store. All approval-state mutation goes
// through CompareAndApply; everything else is reads and append-only inserts.
type Repository struct {
	writer  *bun.DB
	reader  *bun.DB
	timeout time.Duration
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections, cfg config.Config) *Repository {
	return &Repository{
		writer:  conns.Writer,
		reader:  conns.Reader,
		timeout: cfg.Approval.StoreTimeout,
	}
}

// Create persists a new purchase request with its line items in one
// transaction.
func (r *Repository) Create(ctx context.Context, pr *entity.PurchaseRequest) error {
	if pr == nil {
		return errors.New("nil purchase request")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRequestRepository.Create", trace.WithAttributes(attribute.String("pr.number", pr.Number)))
	defer span.End()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(pr).Exec(ctx); err != nil {
			return err
		}
		for _, item := range pr.Items {
			item.PurchaseRequestID = pr.ID
		}
		if len(pr.Items) > 0 {
			if _, err := tx.NewInsert().Model(&pr.Items).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateNumber, err)
		}
		return r.classify(err)
	}
	return nil
}

// GetByID fetches a purchase request with items, ordered approval history,
// and comments.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRequestRepository.GetByID", trace.WithAttributes(attribute.Int64("pr.id", id)))
	defer span.End()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	pr := new(entity.PurchaseRequest)
	err := loadQuery(r.reader.NewSelect().Model(pr)).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, r.classify(err)
	}
	return pr, nil
}

// List returns committed purchase requests matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*entity.PurchaseRequest, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRequestRepository.List")
	defer span.End()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var prs []*entity.PurchaseRequest
	q := loadQuery(r.reader.NewSelect().Model(&prs))
	if f.ProjectID > 0 {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.RequesterID > 0 {
		q = q.Where("requester_id = ?", f.RequesterID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CurrentStage != "" {
		q = q.Where("current_stage = ?", f.CurrentStage)
	}
	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, r.classify(err)
	}
	return prs, nil
}

// CountCreatedInYear counts requests created in the given calendar year,
// used for number generation.
func (r *Repository) CountCreatedInYear(ctx context.Context, year int) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	count, err := r.writer.NewSelect().
		Model((*entity.PurchaseRequest)(nil)).
		Where("created_at >= ? AND created_at < ?", start, start.AddDate(1, 0, 0)).
		Count(ctx)
	if err != nil {
		return 0, r.classify(err)
	}
	return int64(count), nil
}

// CompareAndApply runs the only mutation path for approval state. It reloads
// the request inside a transaction, rejects the write with ErrVersionConflict
// unless the stored version still equals expectedVersion, applies the
// mutation, bumps the version, and appends the returned history entry. Either
// everything commits or nothing does.
func (r *Repository) CompareAndApply(ctx context.Context, id, expectedVersion int64, apply ApplyFunc) (*entity.PurchaseRequest, error) {
	ctx, span := repoTracer.Start(ctx, "PurchaseRequestRepository.CompareAndApply", trace.WithAttributes(
		attribute.Int64("pr.id", id),
		attribute.Int64("pr.version", expectedVersion),
	))
	defer span.End()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var result *entity.PurchaseRequest
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pr := new(entity.PurchaseRequest)
		err := loadQuery(tx.NewSelect().Model(pr)).
			Where("id = ?", id).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if pr.Version != expectedVersion {
			return ErrVersionConflict
		}

		entry, err := apply(pr)
		if err != nil {
			return err
		}

		pr.Version = expectedVersion + 1
		pr.UpdatedAt = time.Now().UTC()
		res, err := tx.NewUpdate().Model(pr).
			Column("status", "current_stage", "version", "updated_at").
			Where("id = ?", id).
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrVersionConflict
		}

		if entry != nil {
			entry.PurchaseRequestID = id
			if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
				return err
			}
			pr.ApprovalHistory = append(pr.ApprovalHistory, entry)
		}

		result = pr
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compare-and-apply failed")
		}
		return nil, r.classify(err)
	}
	return result, nil
}

// AppendComment appends to the comment ledger. Comments never touch approval
// state, so no version check is involved.
func (r *Repository) AppendComment(ctx context.Context, comment *entity.PRComment) error {
	if comment == nil {
		return errors.New("nil comment")
	}
	ctx, span := repoTracer.Start(ctx, "PurchaseRequestRepository.AppendComment", trace.WithAttributes(attribute.Int64("pr.id", comment.PurchaseRequestID)))
	defer span.End()
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.writer.NewInsert().Model(comment).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return r.classify(err)
	}
	return nil
}

func loadQuery(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Items").
		Relation("ApprovalHistory", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("decided_at ASC")
		}).
		Relation("Comments", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at ASC")
		})
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// isUniqueViolation recognises a unique constraint failure across the
// supported drivers.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation()
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// classify maps transport-level failures onto the store error taxonomy.
// Deadline overruns become ErrUnavailable so callers can tell a retryable
// infrastructure fault from a lost race.
func (r *Repository) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
