package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Postgres implements Store on lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// ==========================
// Businesses
// ==========================

func (p *Postgres) GetBusiness(ctx context.Context, businessID string) (*models.Business, error) {
	const query = `SELECT id, name, channels, auto_draft, default_tone, created_at
		FROM businesses WHERE id = $1`

	var (
		b        models.Business
		channels []byte
	)
	err := p.db.QueryRowContext(ctx, query, businessID).Scan(&b.ID, &b.Name, &channels, &b.AutoDraft, &b.DefaultTone, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("business", businessID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get business", err)
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &b.Channels); err != nil {
			return nil, apperrors.NewDatabaseError("decode business channels", err)
		}
	}
	return &b, nil
}

// ==========================
// Integrations
// ==========================

const integrationColumns = `id, business_id, platform, credential, secret, external_ref, status,
	fetch_cursor, last_sync_at, consecutive_failures, COALESCE(last_error, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		i        models.Integration
		lastSync sql.NullTime
	)
	if err := row.Scan(&i.ID, &i.BusinessID, &i.Platform, &i.Credential, &i.Secret, &i.ExternalRef, &i.Status,
		&i.Cursor, &lastSync, &i.ConsecutiveFailures, &i.LastError); err != nil {
		return nil, err
	}
	if lastSync.Valid {
		t := lastSync.Time
		i.LastSyncAt = &t
	}
	return &i, nil
}

func (p *Postgres) GetIntegration(ctx context.Context, businessID, platform string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE business_id = $1 AND platform = $2`

	i, err := scanIntegration(p.db.QueryRowContext(ctx, query, businessID, platform))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("integration", businessID+"/"+platform)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get integration", err)
	}
	return i, nil
}

func (p *Postgres) ListConnected(ctx context.Context, platforms []string) ([]models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations
		WHERE status = 'connected' AND platform = ANY($1)
		ORDER BY business_id, platform`

	rows, err := p.db.QueryContext(ctx, query, pq.Array(platforms))
	if err != nil {
		return nil, apperrors.NewDatabaseError("list integrations", err)
	}
	defer rows.Close()

	var out []models.Integration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan integration", err)
		}
		out = append(out, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list integrations", err)
	}
	return out, nil
}

func (p *Postgres) MarkSynced(ctx context.Context, integrationID, cursor string, at time.Time) error {
	const query = `UPDATE integrations
		SET fetch_cursor = $2, last_sync_at = $3, consecutive_failures = 0, last_error = NULL, updated_at = NOW()
		WHERE id = $1`

	if _, err := p.db.ExecContext(ctx, query, integrationID, cursor, at); err != nil {
		return apperrors.NewDatabaseError("mark synced", err)
	}
	return nil
}

func (p *Postgres) RecordSyncFailure(ctx context.Context, integrationID, reason string, threshold int) (*models.Integration, error) {
	query := `UPDATE integrations
		SET consecutive_failures = consecutive_failures + 1,
		    last_error = $2,
		    status = CASE WHEN consecutive_failures + 1 >= $3 THEN 'error' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + integrationColumns

	i, err := scanIntegration(p.db.QueryRowContext(ctx, query, integrationID, reason, threshold))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("integration", integrationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("record sync failure", err)
	}
	return i, nil
}

func (p *Postgres) MarkIntegrationError(ctx context.Context, integrationID, reason string) error {
	const query = `UPDATE integrations SET status = 'error', last_error = $2, updated_at = NOW() WHERE id = $1`

	if _, err := p.db.ExecContext(ctx, query, integrationID, reason); err != nil {
		return apperrors.NewDatabaseError("mark integration error", err)
	}
	return nil
}

// ==========================
// Reviews
// ==========================

const reviewColumns = `id, business_id, platform, platform_review_id, author, rating, body,
	posted_at, ingested_at, reply_state, COALESCE(reply_text, '')`

func scanReview(row rowScanner) (*models.Review, error) {
	var (
		r      models.Review
		posted sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.BusinessID, &r.Platform, &r.PlatformReviewID, &r.Author, &r.Rating, &r.Body,
		&posted, &r.IngestedAt, &r.ReplyState, &r.ReplyText); err != nil {
		return nil, err
	}
	if posted.Valid {
		r.PostedAt = posted.Time
	}
	return &r, nil
}

func (p *Postgres) InsertReviewIfAbsent(ctx context.Context, r *models.Review) (bool, error) {
	const query = `INSERT INTO reviews
		(id, business_id, platform, platform_review_id, author, rating, body, posted_at, reply_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (business_id, platform, platform_review_id) DO NOTHING
		RETURNING ingested_at`

	id := uuid.NewString()
	state := r.ReplyState
	if state == "" {
		state = models.ReplyStateNone
	}
	var posted sql.NullTime
	if !r.PostedAt.IsZero() {
		posted = sql.NullTime{Time: r.PostedAt, Valid: true}
	}

	var ingestedAt time.Time
	err := p.db.QueryRowContext(ctx, query, id, r.BusinessID, r.Platform, r.PlatformReviewID,
		r.Author, r.Rating, r.Body, posted, state).Scan(&ingestedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return false, nil
	case err != nil:
		return false, apperrors.NewDatabaseError("insert review", err)
	}

	r.ID = id
	r.ReplyState = state
	r.IngestedAt = ingestedAt
	return true, nil
}

func (p *Postgres) GetReview(ctx context.Context, businessID, reviewID string) (*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE business_id = $1 AND id = $2`

	r, err := scanReview(p.db.QueryRowContext(ctx, query, businessID, reviewID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("review", reviewID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get review", err)
	}
	return r, nil
}

func (p *Postgres) TransitionReplyState(ctx context.Context, businessID, reviewID, to string, replyText *string, from ...string) (*models.Review, error) {
	query := `UPDATE reviews
		SET reply_state = $3, reply_text = COALESCE($4, reply_text)
		WHERE business_id = $1 AND id = $2 AND reply_state = ANY($5)
		RETURNING ` + reviewColumns

	var text sql.NullString
	if replyText != nil {
		text = sql.NullString{String: *replyText, Valid: true}
	}

	r, err := scanReview(p.db.QueryRowContext(ctx, query, businessID, reviewID, to, text, pq.Array(from)))
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := p.GetReview(ctx, businessID, reviewID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewConflictError(fmt.Sprintf("reply state is %s", current.ReplyState))
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("update reply state", err)
	}
	return r, nil
}

func (p *Postgres) ListUnfannedReviews(ctx context.Context, ingestedBefore time.Time, limit int) ([]models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews
		WHERE fanned_out_at IS NULL AND ingested_at < $1
		ORDER BY ingested_at, id
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, ingestedBefore, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list unfanned reviews", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan review", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list unfanned reviews", err)
	}
	return out, nil
}

func (p *Postgres) MarkFannedOut(ctx context.Context, reviewIDs []string, at time.Time) error {
	if len(reviewIDs) == 0 {
		return nil
	}
	const query = `UPDATE reviews SET fanned_out_at = $2 WHERE id = ANY($1) AND fanned_out_at IS NULL`

	if _, err := p.db.ExecContext(ctx, query, pq.Array(reviewIDs), at); err != nil {
		return apperrors.NewDatabaseError("mark fanned out", err)
	}
	return nil
}

// ==========================
// Notification jobs
// ==========================

const jobColumns = `id, event_id, business_id, COALESCE(review_id, ''), channel, target, payload,
	status, attempts, COALESCE(last_error, ''), created_at, updated_at`

func scanJob(row rowScanner) (*models.NotificationJob, error) {
	var j models.NotificationJob
	if err := row.Scan(&j.ID, &j.EventID, &j.BusinessID, &j.ReviewID, &j.Channel, &j.Target, &j.Payload,
		&j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (p *Postgres) CreateJobIfAbsent(ctx context.Context, job *models.NotificationJob) (*models.NotificationJob, bool, error) {
	const insert = `INSERT INTO notification_jobs
		(id, event_id, business_id, review_id, channel, target, payload, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0)
		ON CONFLICT (business_id, event_id, channel) DO NOTHING
		RETURNING created_at, updated_at`

	created := *job
	created.ID = uuid.NewString()
	created.Status = models.JobPending
	created.Attempts = 0

	var reviewID sql.NullString
	if job.ReviewID != "" {
		reviewID = sql.NullString{String: job.ReviewID, Valid: true}
	}

	err := p.db.QueryRowContext(ctx, insert, created.ID, job.EventID, job.BusinessID, reviewID,
		job.Channel, job.Target, string(job.Payload)).Scan(&created.CreatedAt, &created.UpdatedAt)
	switch {
	case err == nil:
		return &created, true, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		// fall through to the stored job
	default:
		return nil, false, apperrors.NewDatabaseError("create notification job", err)
	}

	query := `SELECT ` + jobColumns + ` FROM notification_jobs
		WHERE business_id = $1 AND event_id = $2 AND channel = $3`
	existing, err := scanJob(p.db.QueryRowContext(ctx, query, job.BusinessID, job.EventID, job.Channel))
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("load notification job", err)
	}
	return existing, false, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, job *models.NotificationJob) error {
	const query = `UPDATE notification_jobs
		SET status = $2, attempts = $3, last_error = NULLIF($4, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	res, err := p.db.ExecContext(ctx, query, job.ID, job.Status, job.Attempts, job.LastError)
	if err != nil {
		return apperrors.NewDatabaseError("update notification job", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("notification job %s is not pending", job.ID))
	}
	return nil
}

func (p *Postgres) ClaimStaleJob(ctx context.Context, jobID string, staleBefore time.Time) (*models.NotificationJob, bool, error) {
	query := `UPDATE notification_jobs SET updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND updated_at < $2
		RETURNING ` + jobColumns

	j, err := scanJob(p.db.QueryRowContext(ctx, query, jobID, staleBefore))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("claim notification job", err)
	}
	return j, true, nil
}

func (p *Postgres) ListJobsForEvent(ctx context.Context, businessID, eventID string) ([]models.NotificationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs
		WHERE business_id = $1 AND event_id = $2 ORDER BY created_at, channel`

	rows, err := p.db.QueryContext(ctx, query, businessID, eventID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list notification jobs", err)
	}
	defer rows.Close()

	var out []models.NotificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan notification job", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list notification jobs", err)
	}
	return out, nil
}
