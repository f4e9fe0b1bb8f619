package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentityMode(t *testing.T) {
	tests := []struct {
		in       string
		expected IdentityMode
	}{
		{"off", IdentityOff},
		{"inactive", IdentityOff},
		{"", IdentityOff},
		{"required", IdentityRequired},
		{"Active", IdentityRequired},
		{" optional ", IdentityOptional},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseIdentityMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}

	_, err := ParseIdentityMode("sometimes")
	assert.Error(t, err)
}

func TestFollowUpRuleValidate(t *testing.T) {
	pdf := Attachment{Kind: AttachmentPDF, URL: "https://cdn.example.com/a.pdf"}
	day := func(n int) *int { return &n }

	tests := []struct {
		name     string
		rule     FollowUpRule
		expected error
	}{
		{
			name: "valid casual",
			rule: FollowUpRule{Kind: FollowUpCasual, DelayMinutes: 90, Subject: "Hi", Attachment: pdf},
		},
		{
			name:     "missing subject",
			rule:     FollowUpRule{Kind: FollowUpCasual, Subject: "  ", Attachment: pdf},
			expected: ErrSubjectRequired,
		},
		{
			name:     "negative delay",
			rule:     FollowUpRule{Kind: FollowUpCasual, DelayMinutes: -1, Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidDelay,
		},
		{
			name:     "attachment without url",
			rule:     FollowUpRule{Kind: FollowUpCasual, Subject: "Hi", Attachment: Attachment{Kind: AttachmentImage}},
			expected: ErrInvalidAttachment,
		},
		{
			name:     "non http destination",
			rule:     FollowUpRule{Kind: FollowUpCasual, Subject: "Hi", DestinationURL: "ftp://x", Attachment: pdf},
			expected: ErrInvalidURL,
		},
		{
			name:     "hour out of range",
			rule:     FollowUpRule{Kind: FollowUpScheduled, Recurrence: RecurDaily, HourOfDay: 24, Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidHour,
		},
		{
			name:     "weekly without weekday",
			rule:     FollowUpRule{Kind: FollowUpScheduled, Recurrence: RecurWeekly, HourOfDay: 9, Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidWeekday,
		},
		{
			name:     "monthly day out of range",
			rule:     FollowUpRule{Kind: FollowUpScheduled, Recurrence: RecurMonthly, DayOfMonth: day(32), Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidMonthDay,
		},
		{
			name: "valid monthly",
			rule: FollowUpRule{Kind: FollowUpScheduled, Recurrence: RecurMonthly, DayOfMonth: day(31), HourOfDay: 9, Subject: "Hi", Attachment: pdf},
		},
		{
			name:     "unknown recurrence",
			rule:     FollowUpRule{Kind: FollowUpScheduled, Recurrence: "yearly", Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidRecurrence,
		},
		{
			name:     "unknown kind",
			rule:     FollowUpRule{Kind: "urgent", Subject: "Hi", Attachment: pdf},
			expected: ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestHashSessionKey(t *testing.T) {
	a := HashSessionKey("session-1")
	assert.Len(t, a, 32)
	assert.Equal(t, a, HashSessionKey("session-1"))
	assert.NotEqual(t, a, HashSessionKey("session-2"))
}

func TestNewID(t *testing.T) {
	a, err := NewID(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	b, err := NewID(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestClassifyDevice(t *testing.T) {
	assert.Equal(t, Device{}, ClassifyDevice(""))

	d := ClassifyDevice("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	assert.True(t, d.Mobile)
	assert.False(t, d.Bot)
	assert.Equal(t, "Safari", d.Browser)

	bot := ClassifyDevice("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.Bot)
}
