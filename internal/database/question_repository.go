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

const questionColumns = `id, presentation_id, position, type, config, is_live, live_started_at, live_ended_at`

// QuestionRepo implements domain.QuestionRepository backed by PostgreSQL.
type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

func scanQuestion(row pgx.Row) (*domain.Question, error) {
	var q domain.Question
	var rawConfig []byte
	err := row.Scan(
		&q.ID, &q.PresentationID, &q.Order, &q.Type, &rawConfig,
		&q.IsLive, &q.LiveStartedAt, &q.LiveEndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}

	cfg, err := domain.DecodeQuestionConfig(q.Type, rawConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid stored config for question %s: %w", q.ID, err)
	}
	q.Config = cfg
	return &q, nil
}

func (r *QuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Question, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	return scanQuestion(row)
}

func (r *QuestionRepo) ListByPresentation(ctx context.Context, presentationID uuid.UUID) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE presentation_id = $1 ORDER BY position ASC`,
		presentationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func (r *QuestionRepo) SetActive(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions SET is_live = TRUE, live_started_at = $2, live_ended_at = NULL WHERE id = $1`,
		id, startedAt)
	if err != nil {
		return fmt.Errorf("failed to activate question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuestionRepo) SetInactive(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions SET is_live = FALSE, live_ended_at = $2 WHERE id = $1`,
		id, endedAt)
	if err != nil {
		return fmt.Errorf("failed to deactivate question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (r *QuestionRepo) DeactivateAllForPresentation(ctx context.Context, presentationID uuid.UUID, endedAt time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE questions SET is_live = FALSE, live_ended_at = $2 WHERE presentation_id = $1 AND is_live = TRUE RETURNING id`,
		presentationID, endedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate questions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deactivated question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
