package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

const presentationColumns = `id, owner_id, title, is_live, live_started_at, live_ended_at, created_at, updated_at`

// PresentationRepo implements domain.PresentationRepository backed by PostgreSQL.
type PresentationRepo struct {
	pool *pgxpool.Pool
}

func NewPresentationRepo(pool *pgxpool.Pool) *PresentationRepo {
	return &PresentationRepo{pool: pool}
}

func scanPresentation(row pgx.Row) (*domain.Presentation, error) {
	var p domain.Presentation
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.IsLive,
		&p.LiveStartedAt, &p.LiveEndedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPresentationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan presentation: %w", err)
	}
	return &p, nil
}

func (r *PresentationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Presentation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+presentationColumns+` FROM presentations WHERE id = $1`, id)
	return scanPresentation(row)
}

func (r *PresentationRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Presentation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+presentationColumns+` FROM presentations WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list presentations: %w", err)
	}
	defer rows.Close()

	var presentations []domain.Presentation
	for rows.Next() {
		var p domain.Presentation
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.IsLive, &p.LiveStartedAt, &p.LiveEndedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan presentation: %w", err)
		}
		presentations = append(presentations, p)
	}
	return presentations, rows.Err()
}

func (r *PresentationRepo) SetLive(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE presentations SET is_live = TRUE, live_started_at = $2, live_ended_at = NULL, updated_at = NOW() WHERE id = $1`,
		id, startedAt)
	if err != nil {
		return fmt.Errorf("failed to set presentation live: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresentationNotFound
	}
	return nil
}

func (r *PresentationRepo) SetNotLive(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE presentations SET is_live = FALSE, live_ended_at = $2, updated_at = NOW() WHERE id = $1`,
		id, endedAt)
	if err != nil {
		return fmt.Errorf("failed to set presentation not live: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresentationNotFound
	}
	return nil
}
