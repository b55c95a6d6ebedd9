package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canal-compras/disputa/internal/domain/tender"
)

// CatalogRepository implements tender.Repository.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetTender(ctx context.Context, id uuid.UUID) (*tender.Tender, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, agency_id, number, title, object, modality, status, criterion, estimated_value, opening_at, created_at, updated_at
		FROM tenders WHERE id=$1
	`, id)
	var t tender.Tender
	if err := row.Scan(&t.ID, &t.AgencyID, &t.Number, &t.Title, &t.Object, &t.Modality, &t.Status, &t.Criterion, &t.EstimatedValue, &t.OpeningAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *CatalogRepository) ListLots(ctx context.Context, tenderID uuid.UUID) ([]*tender.Lot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tender_id, number, name, description, type, benefit_type, region, eligibility_rule, estimated_value, min_decrement, items
		FROM lots WHERE tender_id=$1 ORDER BY number
	`, tenderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []*tender.Lot
	for rows.Next() {
		var l tender.Lot
		var items json.RawMessage
		if err := rows.Scan(&l.ID, &l.TenderID, &l.Number, &l.Name, &l.Description, &l.Type, &l.BenefitType, &l.Region, &l.EligibilityRule, &l.EstimatedValue, &l.MinDecrement, &items); err != nil {
			return nil, err
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &l.Items); err != nil {
				return nil, fmt.Errorf("lot %s items: %w", l.ID, err)
			}
		}
		lots = append(lots, &l)
	}
	return lots, rows.Err()
}
