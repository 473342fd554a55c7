package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

const responseColumns = `id, question_id, session_id, value, created_at, analysis_results, analysis_completed, analysis_provider, analysis_error`

// ResponseRepo implements domain.ResponseRepository backed by PostgreSQL.
type ResponseRepo struct {
	pool *pgxpool.Pool
}

func NewResponseRepo(pool *pgxpool.Pool) *ResponseRepo {
	return &ResponseRepo{pool: pool}
}

func scanResponse(row pgx.Row) (*domain.Response, error) {
	var resp domain.Response
	var rawResults []byte
	err := row.Scan(
		&resp.ID, &resp.QuestionID, &resp.SessionID, &resp.Value, &resp.CreatedAt,
		&rawResults, &resp.AnalysisCompleted, &resp.AnalysisProvider, &resp.AnalysisError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrResponseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan response: %w", err)
	}

	if len(rawResults) > 0 {
		var results domain.AnalysisResults
		if err := json.Unmarshal(rawResults, &results); err != nil {
			return nil, fmt.Errorf("invalid stored analysis for response %s: %w", resp.ID, err)
		}
		resp.AnalysisResults = &results
	}
	return &resp, nil
}

func (r *ResponseRepo) Insert(ctx context.Context, response *domain.Response) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO responses (id, question_id, session_id, value, created_at) VALUES ($1, $2, $3, $4, $5)`,
		response.ID, response.QuestionID, response.SessionID, response.Value, response.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

func (r *ResponseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Response, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = $1`, id)
	return scanResponse(row)
}

func (r *ResponseRepo) ListByQuestion(ctx context.Context, questionID uuid.UUID) ([]domain.Response, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE question_id = $1 ORDER BY created_at ASC`,
		questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []domain.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, *resp)
	}
	return responses, rows.Err()
}

func (r *ResponseRepo) SetAnalysis(ctx context.Context, id uuid.UUID, results *domain.AnalysisResults, provider string) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis results: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE responses SET analysis_results = $2, analysis_completed = TRUE, analysis_provider = $3, analysis_error = '' WHERE id = $1`,
		id, raw, provider)
	if err != nil {
		return fmt.Errorf("failed to store analysis results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResponseNotFound
	}
	return nil
}

func (r *ResponseRepo) SetAnalysisError(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE responses SET analysis_completed = FALSE, analysis_error = $2 WHERE id = $1`,
		id, message)
	if err != nil {
		return fmt.Errorf("failed to store analysis error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResponseNotFound
	}
	return nil
}

func (r *ResponseRepo) ClearAnalysis(ctx context.Context, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE responses SET analysis_results = NULL, analysis_completed = FALSE, analysis_provider = '', analysis_error = '' WHERE question_id = $1`,
		questionID)
	if err != nil {
		return fmt.Errorf("failed to clear analysis: %w", err)
	}
	return nil
}
