package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/unipro/procurement/internal/database"
	"github.com/unipro/procurement/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// PurchaseRequests seeds example requests if they are missing.
func (s *Seeder) PurchaseRequests(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.PurchaseRequest{
		{
			Number:       "PR-2026-0001",
			ProjectID:    1,
			RequesterID:  1,
			Title:        "Rebar and formwork for tower block A",
			Priority:     entity.PriorityNormal,
			Status:       entity.StatusPending,
			CurrentStage: "Purchasing",
			CreatedAt:    now,
			UpdatedAt:    now,
			Items: []*entity.PRItem{
				{MaterialID: 1, Quantity: 500, Unit: "kg", EstimatedUnitPrice: 1.2, Vendor: "PT Baja Utama"},
				{MaterialID: 2, Quantity: 40, Unit: "sheet", EstimatedUnitPrice: 18.5},
			},
		},
		{
			Number:       "PR-2026-0002",
			ProjectID:    1,
			RequesterID:  2,
			Title:        "Site office consumables",
			Priority:     entity.PriorityLow,
			Status:       entity.StatusPending,
			CurrentStage: "Purchasing",
			CreatedAt:    now,
			UpdatedAt:    now,
			Items: []*entity.PRItem{
				{MaterialID: 3, Quantity: 10, Unit: "box", EstimatedUnitPrice: 4.75},
			},
		},
	}

	for _, sample := range samples {
		pr := sample
		pr.RecomputeTotal()
		res, err := s.db.NewInsert().Model(&pr).
			On("CONFLICT (number) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if rows, err := res.RowsAffected(); err != nil || rows == 0 {
			continue
		}
		for _, item := range pr.Items {
			item.PurchaseRequestID = pr.ID
		}
		if _, err := s.db.NewInsert().Model(&pr.Items).Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded purchase requests", zap.Int("count", len(samples)))
	}
	return nil
}
