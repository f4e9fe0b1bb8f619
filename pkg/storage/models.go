package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IdentityMode decides whether a link demands an identity proof before release.
type IdentityMode string

const (
	IdentityOff      IdentityMode = "off"
	IdentityRequired IdentityMode = "required"
	IdentityOptional IdentityMode = "optional"
)

// ParseIdentityMode accepts the canonical names and the admin console's
// legacy values ("inactive", "active").
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "inactive", "":
		return IdentityOff, nil
	case "required", "active":
		return IdentityRequired, nil
	case "optional":
		return IdentityOptional, nil
	}
	return "", fmt.Errorf("unknown identity mode %q", s)
}

type Link struct {
	ID             string       `json:"id" db:"id"`
	Slug           string       `json:"slug" db:"slug"`
	DestinationURL string       `json:"destination_url" db:"destination_url"`
	IsActive       bool         `json:"is_active" db:"is_active"`
	IdentityMode   IdentityMode `json:"identity_mode" db:"identity_mode"`
	ButtonLabel    string       `json:"button_label,omitempty" db:"button_label"`
	ButtonColor    string       `json:"button_color,omitempty" db:"button_color"`
	Category       string       `json:"category,omitempty" db:"category"`
	ImageURL       string       `json:"image_url,omitempty" db:"image_url"`
	Description    string       `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Device is the coarse client classification attached to a visit.
type Device struct {
	Browser  string `json:"browser,omitempty"`
	Platform string `json:"platform,omitempty"`
	Mobile   bool   `json:"mobile"`
	Bot      bool   `json:"bot"`
}

type Visit struct {
	Slug       string    `json:"slug"`
	SessionKey string    `json:"-"`
	At         time.Time `json:"at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referer    string    `json:"referer,omitempty"`
	Device     Device    `json:"device"`
}

type IdentityCapture struct {
	ID         string    `json:"id" db:"id"`
	LinkID     string    `json:"link_id" db:"link_id"`
	Slug       string    `json:"slug" db:"slug"`
	SessionKey string    `json:"-" db:"session_key"`
	Email      string    `json:"email" db:"email"`
	Channel    string    `json:"channel" db:"channel"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

type FollowUpKind string

const (
	FollowUpCasual    FollowUpKind = "casual"
	FollowUpScheduled FollowUpKind = "scheduled"
)

type Recurrence string

const (
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentPDF   AttachmentKind = "pdf"
)

// Attachment is an opaque payload reference handed to the delivery sink.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
}

type FollowUpRule struct {
	ID             string       `json:"id" db:"id"`
	LinkID         string       `json:"link_id" db:"link_id"`
	Enabled        bool         `json:"enabled" db:"enabled"`
	Approved       bool         `json:"approved" db:"approved"`
	Kind           FollowUpKind `json:"kind" db:"kind"`
	DelayMinutes   int          `json:"delay_minutes" db:"delay_minutes"`
	Recurrence     Recurrence   `json:"recurrence,omitempty" db:"recurrence"`
	HourOfDay      int          `json:"hour_of_day" db:"hour_of_day"`
	DayOfWeek      *int         `json:"day_of_week,omitempty" db:"day_of_week"`
	DayOfMonth     *int         `json:"day_of_month,omitempty" db:"day_of_month"`
	Subject        string       `json:"subject" db:"subject"`
	DestinationURL string       `json:"destination_url,omitempty" db:"destination_url"`
	Attachment     Attachment   `json:"attachment" db:"attachment"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// Active reports whether the rule may enqueue new deliveries.
func (r FollowUpRule) Active() bool {
	return r.Enabled && r.Approved
}

var (
	ErrSubjectRequired   = errors.New("subject is required")
	ErrInvalidDelay      = errors.New("delay in minutes must be zero or positive")
	ErrInvalidHour       = errors.New("send hour must be between 0 and 23")
	ErrInvalidWeekday    = errors.New("day of week must be between 0 and 6")
	ErrInvalidMonthDay   = errors.New("day of month must be between 1 and 31")
	ErrInvalidRecurrence = errors.New("schedule type must be daily, weekly or monthly")
	ErrInvalidKind       = errors.New("follow-up type must be casual or scheduled")
	ErrInvalidURL        = errors.New("destination URL must start with http:// or https://")
	ErrInvalidAttachment = errors.New("attachment must be an image or pdf with a URL")
)

// Validate checks the rule the same way the admin form does before saving.
func (r FollowUpRule) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return ErrSubjectRequired
	}
	if r.DestinationURL != "" && !isHTTPURL(r.DestinationURL) {
		return ErrInvalidURL
	}
	switch r.Attachment.Kind {
	case AttachmentImage, AttachmentPDF:
		if strings.TrimSpace(r.Attachment.URL) == "" {
			return ErrInvalidAttachment
		}
	default:
		return ErrInvalidAttachment
	}

	switch r.Kind {
	case FollowUpCasual:
		if r.DelayMinutes < 0 {
			return ErrInvalidDelay
		}
		return nil
	case FollowUpScheduled:
	default:
		return ErrInvalidKind
	}

	if r.HourOfDay < 0 || r.HourOfDay > 23 {
		return ErrInvalidHour
	}
	switch r.Recurrence {
	case RecurDaily:
	case RecurWeekly:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return ErrInvalidWeekday
		}
	case RecurMonthly:
		if r.DayOfMonth == nil || *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return ErrInvalidMonthDay
		}
	default:
		return ErrInvalidRecurrence
	}
	return nil
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
)

// DeliveryRecord is the single follow-up owed for a (capture, rule) pair.
// Rule payload and capture email are copied in at enqueue time.
type DeliveryRecord struct {
	ID             string     `json:"id" db:"id"`
	CaptureID      string     `json:"capture_id" db:"capture_id"`
	RuleID         string     `json:"rule_id" db:"rule_id"`
	LinkID         string     `json:"link_id" db:"link_id"`
	Email          string     `json:"email" db:"email"`
	Subject        string     `json:"subject" db:"subject"`
	DestinationURL string     `json:"destination_url,omitempty" db:"destination_url"`
	Attachment     Attachment `json:"attachment" db:"attachment"`
	ScheduledFor   time.Time  `json:"scheduled_for" db:"scheduled_for"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	ClaimedUntil   *time.Time `json:"claimed_until,omitempty" db:"claimed_until"`
	Attempts       int        `json:"attempts" db:"attempts"`
	LastError      string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

func (d DeliveryRecord) Status() DeliveryStatus {
	if d.SentAt != nil {
		return DeliverySent
	}
	return DeliveryPending
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
