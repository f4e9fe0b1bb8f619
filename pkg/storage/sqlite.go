package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkgate/pkg/sentinel"
	"linkgate/pkg/storage/schema"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver
)

// SQLiteStore persists to a local SQLite file or a remote libsql database.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbURL string) (*SQLiteStore, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	if driverName == "sqlite" {
		// a single writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driverName, err)
	}
	if _, err := db.ExecContext(ctx, schema.SQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func (s *SQLiteStore) Create(ctx context.Context, link *Link) error {
	query := `INSERT INTO links (` + linkColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, link.ID, link.Slug, link.DestinationURL, link.IsActive, string(link.IdentityMode),
		link.ButtonLabel, link.ButtonColor, link.Category, link.ImageURL, link.Description, toMillis(link.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert link %s: %w", link.Slug, err)
	}
	return nil
}

func (s *SQLiteStore) GetBySlug(ctx context.Context, slug string) (*Link, error) {
	var link Link
	var mode string
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE slug = ?`, slug).Scan(&link.ID, &link.Slug,
		&link.DestinationURL, &link.IsActive, &mode, &link.ButtonLabel, &link.ButtonColor, &link.Category, &link.ImageURL,
		&link.Description, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("link %s: %w", slug, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("select link %s: %w", slug, err)
	}
	link.IdentityMode = IdentityMode(mode)
	link.CreatedAt = fromMillis(created)
	return &link, nil
}

func (s *SQLiteStore) RecordVisit(ctx context.Context, visit Visit) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO visits (slug, session_key, visited_at, user_agent, referer, browser, platform, mobile, bot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (slug, session_key) DO NOTHING`,
		visit.Slug, HashSessionKey(visit.SessionKey), toMillis(visit.At), visit.UserAgent, visit.Referer,
		visit.Device.Browser, visit.Device.Platform, visit.Device.Mobile, visit.Device.Bot)
	if err != nil {
		return false, fmt.Errorf("record visit %s: %w", visit.Slug, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record visit %s: %w", visit.Slug, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) CreateRule(ctx context.Context, rule *FollowUpRule) error {
	query := `INSERT INTO follow_up_rules (` + ruleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, rule.ID, rule.LinkID, rule.Enabled, rule.Approved, string(rule.Kind), rule.DelayMinutes,
		string(rule.Recurrence), rule.HourOfDay, rule.DayOfWeek, rule.DayOfMonth, rule.Subject, rule.DestinationURL,
		string(rule.Attachment.Kind), rule.Attachment.URL, toMillis(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *FollowUpRule) error {
	res, err := s.db.ExecContext(ctx, `UPDATE follow_up_rules SET enabled = ?, approved = ?, kind = ?, delay_minutes = ?,
		recurrence = ?, hour_of_day = ?, day_of_week = ?, day_of_month = ?, subject = ?, destination_url = ?,
		attachment_kind = ?, attachment_url = ? WHERE id = ?`,
		rule.Enabled, rule.Approved, string(rule.Kind), rule.DelayMinutes, string(rule.Recurrence), rule.HourOfDay,
		rule.DayOfWeek, rule.DayOfMonth, rule.Subject, rule.DestinationURL, string(rule.Attachment.Kind), rule.Attachment.URL, rule.ID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM follow_up_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) ListRulesByLink(ctx context.Context, linkID string) ([]FollowUpRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM follow_up_rules WHERE link_id = ? ORDER BY created_at, id`, linkID)
	if err != nil {
		return nil, fmt.Errorf("list rules for link %s: %w", linkID, err)
	}
	defer rows.Close()

	var rules []FollowUpRule
	for rows.Next() {
		var r FollowUpRule
		var kind, recurrence, attachmentKind string
		var created int64
		if err := rows.Scan(&r.ID, &r.LinkID, &r.Enabled, &r.Approved, &kind, &r.DelayMinutes, &recurrence, &r.HourOfDay,
			&r.DayOfWeek, &r.DayOfMonth, &r.Subject, &r.DestinationURL, &attachmentKind, &r.Attachment.URL, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = FollowUpKind(kind)
		r.Recurrence = Recurrence(recurrence)
		r.Attachment.Kind = AttachmentKind(attachmentKind)
		r.CreatedAt = fromMillis(created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLiteStore) CreateCaptureIfAbsent(ctx context.Context, capture *IdentityCapture) (*IdentityCapture, bool, error) {
	hashed := HashSessionKey(capture.SessionKey)
	res, err := s.db.ExecContext(ctx, `INSERT INTO identity_captures (`+captureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug, session_key) DO NOTHING`,
		capture.ID, capture.LinkID, capture.Slug, hashed, capture.Email, capture.Channel, toMillis(capture.CapturedAt))
	if err != nil {
		return nil, false, fmt.Errorf("insert capture for %s: %w", capture.Slug, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		created := *capture
		return &created, true, nil
	}

	existing, err := scanSQLiteCapture(s.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM identity_captures WHERE slug = ? AND session_key = ?`, capture.Slug, hashed))
	if err != nil {
		return nil, false, err
	}
	existing.SessionKey = capture.SessionKey
	return existing, false, nil
}

func (s *SQLiteStore) GetCapture(ctx context.Context, id string) (*IdentityCapture, error) {
	return scanSQLiteCapture(s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM identity_captures WHERE id = ?`, id))
}

func scanSQLiteCapture(row *sql.Row) (*IdentityCapture, error) {
	var c IdentityCapture
	var captured int64
	if err := row.Scan(&c.ID, &c.LinkID, &c.Slug, &c.SessionKey, &c.Email, &c.Channel, &captured); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capture: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan capture: %w", err)
	}
	c.CapturedAt = fromMillis(captured)
	return &c, nil
}

func (s *SQLiteStore) CreateDeliveryIfAbsent(ctx context.Context, record *DeliveryRecord) (*DeliveryRecord, bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO delivery_records (id, capture_id, rule_id, link_id, email, subject,
		destination_url, attachment_kind, attachment_url, scheduled_for, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (capture_id, rule_id) DO NOTHING`,
		record.ID, record.CaptureID, record.RuleID, record.LinkID, record.Email, record.Subject, record.DestinationURL,
		string(record.Attachment.Kind), record.Attachment.URL, toMillis(record.ScheduledFor), toMillis(record.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("insert delivery for capture %s rule %s: %w", record.CaptureID, record.RuleID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		created := *record
		return &created, true, nil
	}

	existing, err := scanSQLiteDelivery(s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM delivery_records WHERE capture_id = ? AND rule_id = ?`, record.CaptureID, record.RuleID))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*DeliveryRecord, error) {
	return scanSQLiteDelivery(s.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM delivery_records WHERE id = ?`, id))
}

func (s *SQLiteStore) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `UPDATE delivery_records SET claimed_until = ?
		WHERE id IN (
			SELECT id FROM delivery_records
			WHERE sent_at IS NULL AND scheduled_for <= ? AND (claimed_until IS NULL OR claimed_until < ?)
			ORDER BY scheduled_for, id
			LIMIT ?
		)
		RETURNING `+deliveryColumns, toMillis(leaseUntil), toMillis(now), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		d, err := scanSQLiteDelivery(rows)
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

func (s *SQLiteStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE delivery_records SET sent_at = ?, claimed_until = NULL WHERE id = ? AND sent_at IS NULL`,
		toMillis(sentAt), id)
	if err != nil {
		return fmt.Errorf("mark delivery %s sent: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	if _, err := s.GetDelivery(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("delivery %s: %w", id, sentinel.ErrAlreadySent)
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE delivery_records SET attempts = attempts + 1, last_error = ?, claimed_until = NULL
		WHERE id = ? AND sent_at IS NULL`, reason, id)
	if err != nil {
		return fmt.Errorf("record delivery %s failure: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pending delivery %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDelivery(row rowScanner) (*DeliveryRecord, error) {
	var d DeliveryRecord
	var attachmentKind string
	var scheduled, created int64
	var sent, claimed sql.NullInt64
	err := row.Scan(&d.ID, &d.CaptureID, &d.RuleID, &d.LinkID, &d.Email, &d.Subject, &d.DestinationURL, &attachmentKind,
		&d.Attachment.URL, &scheduled, &sent, &claimed, &d.Attempts, &d.LastError, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("delivery: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.Attachment.Kind = AttachmentKind(attachmentKind)
	d.ScheduledFor = fromMillis(scheduled)
	d.SentAt = fromNullMillis(sent)
	d.ClaimedUntil = fromNullMillis(claimed)
	d.CreatedAt = fromMillis(created)
	return &d, nil
}
