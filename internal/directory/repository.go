// Package directory provides read-only access to the company and handler
// directory. Profiles are owned by an external profile-management subsystem;
// this service only reads category affinities, availability, and reputation
// metrics for scoring and assignment.
package directory

import (
	"context"
	"errors"
	"time"

	"leaddesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Company is a company as the allocator sees it.
type Company struct {
	ID                   uuid.UUID
	Name                 string
	OwnerUserID          uuid.UUID
	Featured             bool
	InternalLeadsEnabled bool
	CategoryIDs          []uuid.UUID
	RatingAvg            float64
	RatingCount          int
	AvgResponseMinutes   *float64
	ConversionRate       float64
}

// Handler is an individual who may receive assigned leads. The director is
// a handler with IsDirector set; scoring and assignment treat both
// uniformly.
type Handler struct {
	ID                 uuid.UUID
	CompanyID          uuid.UUID
	UserID             uuid.UUID
	DisplayName        string
	IsDirector         bool
	IsAvailable        bool
	CategoryIDs        []uuid.UUID
	RatingAvg          float64
	RatingCount        int
	AvgResponseMinutes *float64
	ConversionRate     float64
}

// Lead is an immutable reference to a posted service request.
type Lead struct {
	ID         uuid.UUID
	CategoryID uuid.UUID
	Locality   string
	Urgency    string
	BudgetMin  *int64
	BudgetMax  *int64
	CreatedAt  time.Time
}

// Repository reads the directory tables.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new directory repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const companyColumns = `id, name, owner_user_id, featured, internal_leads_enabled,
	category_ids, rating_avg, rating_count, avg_response_minutes, conversion_rate`

const handlerColumns = `id, company_id, user_id, display_name, is_director, is_available,
	category_ids, rating_avg, rating_count, avg_response_minutes, conversion_rate`

func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	var company Company
	err := r.pool.QueryRow(ctx, `
		SELECT `+companyColumns+`
		FROM companies WHERE id = $1
	`, id).Scan(
		&company.ID, &company.Name, &company.OwnerUserID, &company.Featured, &company.InternalLeadsEnabled,
		&company.CategoryIDs, &company.RatingAvg, &company.RatingCount, &company.AvgResponseMinutes, &company.ConversionRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, apperr.NotFound("company not found")
	}
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, category_id, locality, urgency, budget_min, budget_max, created_at
		FROM leads WHERE id = $1
	`, id).Scan(
		&lead.ID, &lead.CategoryID, &lead.Locality, &lead.Urgency, &lead.BudgetMin, &lead.BudgetMax, &lead.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetHandler(ctx context.Context, id uuid.UUID) (Handler, error) {
	var handler Handler
	err := r.pool.QueryRow(ctx, `
		SELECT `+handlerColumns+`
		FROM handlers WHERE id = $1
	`, id).Scan(
		&handler.ID, &handler.CompanyID, &handler.UserID, &handler.DisplayName, &handler.IsDirector, &handler.IsAvailable,
		&handler.CategoryIDs, &handler.RatingAvg, &handler.RatingCount, &handler.AvgResponseMinutes, &handler.ConversionRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handler{}, apperr.NotFound("handler not found")
	}
	if err != nil {
		return Handler{}, err
	}
	return handler, nil
}

// GetHandlerByUser resolves the handler record of an acting user inside a
// company. Used for director checks on manual assignment.
func (r *Repository) GetHandlerByUser(ctx context.Context, companyID, userID uuid.UUID) (Handler, error) {
	var handler Handler
	err := r.pool.QueryRow(ctx, `
		SELECT `+handlerColumns+`
		FROM handlers WHERE company_id = $1 AND user_id = $2
	`, companyID, userID).Scan(
		&handler.ID, &handler.CompanyID, &handler.UserID, &handler.DisplayName, &handler.IsDirector, &handler.IsAvailable,
		&handler.CategoryIDs, &handler.RatingAvg, &handler.RatingCount, &handler.AvgResponseMinutes, &handler.ConversionRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handler{}, apperr.NotFound("handler not found")
	}
	if err != nil {
		return Handler{}, err
	}
	return handler, nil
}

// ListAvailableHandlers returns every available handler of a company,
// director included.
func (r *Repository) ListAvailableHandlers(ctx context.Context, companyID uuid.UUID) ([]Handler, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+handlerColumns+`
		FROM handlers
		WHERE company_id = $1 AND is_available = true
		ORDER BY display_name ASC
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Handler, 0)
	for rows.Next() {
		var handler Handler
		if err := rows.Scan(
			&handler.ID, &handler.CompanyID, &handler.UserID, &handler.DisplayName, &handler.IsDirector, &handler.IsAvailable,
			&handler.CategoryIDs, &handler.RatingAvg, &handler.RatingCount, &handler.AvgResponseMinutes, &handler.ConversionRate,
		); err != nil {
			return nil, err
		}
		items = append(items, handler)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

// GetDirector returns the company's director.
func (r *Repository) GetDirector(ctx context.Context, companyID uuid.UUID) (Handler, error) {
	var handler Handler
	err := r.pool.QueryRow(ctx, `
		SELECT `+handlerColumns+`
		FROM handlers WHERE company_id = $1 AND is_director = true
	`, companyID).Scan(
		&handler.ID, &handler.CompanyID, &handler.UserID, &handler.DisplayName, &handler.IsDirector, &handler.IsAvailable,
		&handler.CategoryIDs, &handler.RatingAvg, &handler.RatingCount, &handler.AvgResponseMinutes, &handler.ConversionRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handler{}, apperr.NotFound("company has no director")
	}
	if err != nil {
		return Handler{}, err
	}
	return handler, nil
}
