package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngo-platform/backend/internal/models"
)

// ErrNotFound is returned when no submission matches a lookup.
var ErrNotFound = errors.New("submission not found")

// Store is the Submission Recorder: append-only records plus delivery bookkeeping.
type Store interface {
	Insert(ctx context.Context, sub *models.Submission) error
	Get(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, organizationID string, kind models.SubmissionKind, limit int) ([]models.Submission, error)
	UpdateDelivery(ctx context.Context, id, status string) error
}

// PostgresRepository records submissions in PostgreSQL. Variant payloads and workflow artefacts are
// JSONB columns.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a submissions repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type row struct {
	payload, documents, analysis, input, failures []byte
}

func encode(sub *models.Submission) (row, error) {
	var (
		r   row
		err error
	)
	switch sub.Kind {
	case models.KindDonor:
		r.payload, err = json.Marshal(sub.DonationDetails)
	case models.KindRecipient:
		r.payload, err = json.Marshal(sub.AssistanceRequest)
	default:
		return r, fmt.Errorf("unknown submission kind %q", sub.Kind)
	}
	if err != nil {
		return r, fmt.Errorf("marshal payload: %w", err)
	}
	documents := sub.Documents
	if documents == nil {
		documents = []models.DocumentRef{}
	}
	if r.documents, err = json.Marshal(documents); err != nil {
		return r, fmt.Errorf("marshal documents: %w", err)
	}
	if sub.Analysis != nil {
		if r.analysis, err = json.Marshal(sub.Analysis); err != nil {
			return r, fmt.Errorf("marshal analysis: %w", err)
		}
	}
	input := sub.CorrespondenceInput
	if input == nil {
		input = map[string]string{}
	}
	if r.input, err = json.Marshal(input); err != nil {
		return r, fmt.Errorf("marshal correspondence input: %w", err)
	}
	failures := sub.Failures
	if failures == nil {
		failures = []models.StageFailure{}
	}
	if r.failures, err = json.Marshal(failures); err != nil {
		return r, fmt.Errorf("marshal failures: %w", err)
	}
	return r, nil
}

func (r row) decode(sub *models.Submission) error {
	switch sub.Kind {
	case models.KindDonor:
		sub.DonationDetails = &models.DonationDetails{}
		if err := json.Unmarshal(r.payload, sub.DonationDetails); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	case models.KindRecipient:
		sub.AssistanceRequest = &models.AssistanceRequest{}
		if err := json.Unmarshal(r.payload, sub.AssistanceRequest); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	if err := json.Unmarshal(r.documents, &sub.Documents); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	if len(r.analysis) > 0 {
		sub.Analysis = &models.Analysis{}
		if err := json.Unmarshal(r.analysis, sub.Analysis); err != nil {
			return fmt.Errorf("decode analysis: %w", err)
		}
	}
	if err := json.Unmarshal(r.input, &sub.CorrespondenceInput); err != nil {
		return fmt.Errorf("decode correspondence input: %w", err)
	}
	if err := json.Unmarshal(r.failures, &sub.Failures); err != nil {
		return fmt.Errorf("decode failures: %w", err)
	}
	return nil
}

// Insert writes sub as a single row.
func (p *PostgresRepository) Insert(ctx context.Context, sub *models.Submission) error {
	r, err := encode(sub)
	if err != nil {
		return err
	}
	const q = `INSERT INTO submissions (id, organization_id, kind, payload, documents, analysis, correspondence_input,
		email_content, envelope_id, stage, status, failures, delivery_status, created_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = p.pool.Exec(ctx, q, sub.ID, sub.OrganizationID, string(sub.Kind), r.payload, r.documents, r.analysis, r.input,
		sub.EmailContent, sub.EnvelopeID, string(sub.Stage), string(sub.Status), r.failures, sub.DeliveryStatus,
		sub.CreatedAt, sub.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const selectSubmission = `SELECT id, organization_id, kind, payload, documents, analysis, correspondence_input,
	email_content, envelope_id, stage, status, failures, delivery_status, created_at, recorded_at
	FROM submissions`

func scan(s pgx.Row) (*models.Submission, error) {
	var (
		sub                 models.Submission
		r                   row
		kind, stage, status string
	)
	err := s.Scan(&sub.ID, &sub.OrganizationID, &kind, &r.payload, &r.documents, &r.analysis, &r.input,
		&sub.EmailContent, &sub.EnvelopeID, &stage, &status, &r.failures, &sub.DeliveryStatus,
		&sub.CreatedAt, &sub.RecordedAt)
	if err != nil {
		return nil, err
	}
	sub.Kind = models.SubmissionKind(kind)
	sub.Stage = models.Stage(stage)
	sub.Status = models.Status(status)
	if err := r.decode(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Get returns a submission by ID.
func (p *PostgresRepository) Get(ctx context.Context, id string) (*models.Submission, error) {
	sub, err := scan(p.pool.QueryRow(ctx, selectSubmission+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// List returns up to limit submissions of kind for the organization, newest first.
func (p *PostgresRepository) List(ctx context.Context, organizationID string, kind models.SubmissionKind, limit int) ([]models.Submission, error) {
	rows, err := p.pool.Query(ctx, selectSubmission+`
		WHERE organization_id = $1 AND kind = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, organizationID, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Submission
	for rows.Next() {
		sub, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// UpdateDelivery sets the delivery status of a recorded submission.
func (p *PostgresRepository) UpdateDelivery(ctx context.Context, id, status string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE submissions SET delivery_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
