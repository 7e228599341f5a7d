package models

import "time"

// Link maps a short code to an original URL. The short code is unique and
// immutable once created; moderation may flip IsMalicious, and click handling
// updates the associated analytics row.
type Link struct {
	ID             int        `json:"id"`
	ShortCode      string     `json:"short_code"`
	OriginalURL    string     `json:"original_url"`
	IPAddress      string     `json:"ip_address"`
	UserID         string     `json:"user_id,omitempty"`
	IsMalicious    bool       `json:"is_malicious"`
	SafetyScore    int        `json:"safety_score"`
	SafetyCategory string     `json:"safety_category,omitempty"`
	SafetyWarnings []string   `json:"safety_warnings,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the link has an expiry in the past.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// LinkAnalytics holds aggregate click counters for one link.
type LinkAnalytics struct {
	LinkID         int        `json:"link_id"`
	Clicks         int64      `json:"clicks"`
	UniqueVisitors int64      `json:"unique_visitors"`
	LastClickedAt  *time.Time `json:"last_clicked_at,omitempty"`
}

// Visit is a single recorded click on a link.
type Visit struct {
	ID        int       `json:"id"`
	LinkID    int       `json:"link_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
	Device    string    `json:"device,omitempty"`
	Country   string    `json:"country,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
