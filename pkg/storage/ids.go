package storage

import (
	"crypto/rand"
	"time"

	"github.com/mssola/useragent"
	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID string (26 chars) timestamped at now.
func NewID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ClassifyDevice derives the coarse device class from a User-Agent header.
func ClassifyDevice(userAgent string) Device {
	if userAgent == "" {
		return Device{}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	return Device{
		Browser:  browser,
		Platform: ua.Platform(),
		Mobile:   ua.Mobile(),
		Bot:      ua.Bot(),
	}
}
