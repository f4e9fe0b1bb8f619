package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkgate/pkg/sentinel"

	"github.com/jackc/pgx/v5"
)

const ruleColumns = `id, link_id, enabled, approved, kind, delay_minutes, recurrence, hour_of_day, day_of_week, day_of_month, subject, destination_url, attachment_kind, attachment_url, created_at`

func (s *PostgresStore) CreateRule(ctx context.Context, rule *FollowUpRule) error {
	query := `INSERT INTO follow_up_rules (` + ruleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := s.pool.Exec(ctx, query, rule.ID, rule.LinkID, rule.Enabled, rule.Approved, string(rule.Kind), rule.DelayMinutes,
		string(rule.Recurrence), rule.HourOfDay, rule.DayOfWeek, rule.DayOfMonth, rule.Subject, rule.DestinationURL,
		string(rule.Attachment.Kind), rule.Attachment.URL, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *FollowUpRule) error {
	query := `UPDATE follow_up_rules SET enabled = $2, approved = $3, kind = $4, delay_minutes = $5, recurrence = $6,
		hour_of_day = $7, day_of_week = $8, day_of_month = $9, subject = $10, destination_url = $11,
		attachment_kind = $12, attachment_url = $13 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, rule.ID, rule.Enabled, rule.Approved, string(rule.Kind), rule.DelayMinutes,
		string(rule.Recurrence), rule.HourOfDay, rule.DayOfWeek, rule.DayOfMonth, rule.Subject, rule.DestinationURL,
		string(rule.Attachment.Kind), rule.Attachment.URL)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM follow_up_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListRulesByLink(ctx context.Context, linkID string) ([]FollowUpRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM follow_up_rules WHERE link_id = $1 ORDER BY created_at, id`, linkID)
	if err != nil {
		return nil, fmt.Errorf("list rules for link %s: %w", linkID, err)
	}
	defer rows.Close()

	var rules []FollowUpRule
	for rows.Next() {
		var r FollowUpRule
		var kind, recurrence, attachmentKind string
		if err := rows.Scan(&r.ID, &r.LinkID, &r.Enabled, &r.Approved, &kind, &r.DelayMinutes, &recurrence, &r.HourOfDay,
			&r.DayOfWeek, &r.DayOfMonth, &r.Subject, &r.DestinationURL, &attachmentKind, &r.Attachment.URL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = FollowUpKind(kind)
		r.Recurrence = Recurrence(recurrence)
		r.Attachment.Kind = AttachmentKind(attachmentKind)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

const captureColumns = `id, link_id, slug, session_key, email, channel, captured_at`

func (s *PostgresStore) CreateCaptureIfAbsent(ctx context.Context, capture *IdentityCapture) (*IdentityCapture, bool, error) {
	hashed := HashSessionKey(capture.SessionKey)
	query := `INSERT INTO identity_captures (` + captureColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug, session_key) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, capture.ID, capture.LinkID, capture.Slug, hashed, capture.Email, capture.Channel, capture.CapturedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert capture for %s: %w", capture.Slug, err)
	}
	if tag.RowsAffected() == 1 {
		created := *capture
		return &created, true, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+captureColumns+` FROM identity_captures WHERE slug = $1 AND session_key = $2`, capture.Slug, hashed)
	existing, err := scanCapture(row)
	if err != nil {
		return nil, false, err
	}
	existing.SessionKey = capture.SessionKey
	return existing, false, nil
}

func (s *PostgresStore) GetCapture(ctx context.Context, id string) (*IdentityCapture, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+captureColumns+` FROM identity_captures WHERE id = $1`, id)
	return scanCapture(row)
}

func scanCapture(row pgx.Row) (*IdentityCapture, error) {
	var c IdentityCapture
	if err := row.Scan(&c.ID, &c.LinkID, &c.Slug, &c.SessionKey, &c.Email, &c.Channel, &c.CapturedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("capture: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan capture: %w", err)
	}
	return &c, nil
}

const deliveryColumns = `id, capture_id, rule_id, link_id, email, subject, destination_url, attachment_kind, attachment_url, scheduled_for, sent_at, claimed_until, attempts, last_error, created_at`

func (s *PostgresStore) CreateDeliveryIfAbsent(ctx context.Context, record *DeliveryRecord) (*DeliveryRecord, bool, error) {
	query := `INSERT INTO delivery_records (id, capture_id, rule_id, link_id, email, subject, destination_url, attachment_kind,
		attachment_url, scheduled_for, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (capture_id, rule_id) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, record.ID, record.CaptureID, record.RuleID, record.LinkID, record.Email, record.Subject,
		record.DestinationURL, string(record.Attachment.Kind), record.Attachment.URL, record.ScheduledFor, record.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert delivery for capture %s rule %s: %w", record.CaptureID, record.RuleID, err)
	}
	if tag.RowsAffected() == 1 {
		created := *record
		return &created, true, nil
	}

	row := s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM delivery_records WHERE capture_id = $1 AND rule_id = $2`,
		record.CaptureID, record.RuleID)
	existing, err := scanDelivery(row)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*DeliveryRecord, error) {
	return scanDelivery(s.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM delivery_records WHERE id = $1`, id))
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]DeliveryRecord, error) {
	query := `UPDATE delivery_records SET claimed_until = $2
		WHERE id IN (
			SELECT id FROM delivery_records
			WHERE sent_at IS NULL AND scheduled_for <= $1 AND (claimed_until IS NULL OR claimed_until < $1)
			ORDER BY scheduled_for, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryColumns
	rows, err := s.pool.Query(ctx, query, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	sortDue(out)
	return out, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE delivery_records SET sent_at = $2, claimed_until = NULL WHERE id = $1 AND sent_at IS NULL`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark delivery %s sent: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetDelivery(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("delivery %s: %w", id, sentinel.ErrAlreadySent)
}

func (s *PostgresStore) RecordFailure(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE delivery_records SET attempts = attempts + 1, last_error = $2, claimed_until = NULL
		WHERE id = $1 AND sent_at IS NULL`, id, reason)
	if err != nil {
		return fmt.Errorf("record delivery %s failure: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending delivery %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func scanDelivery(row pgx.Row) (*DeliveryRecord, error) {
	var d DeliveryRecord
	var attachmentKind string
	err := row.Scan(&d.ID, &d.CaptureID, &d.RuleID, &d.LinkID, &d.Email, &d.Subject, &d.DestinationURL, &attachmentKind,
		&d.Attachment.URL, &d.ScheduledFor, &d.SentAt, &d.ClaimedUntil, &d.Attempts, &d.LastError, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("delivery: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.Attachment.Kind = AttachmentKind(attachmentKind)
	return &d, nil
}
