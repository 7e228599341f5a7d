package models

import "time"

// Moderation item statuses. Pending items may transition to approved or
// rejected exactly once; both resolved states are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// IP block statuses.
const (
	BlockActive  = "active"
	BlockRemoved = "removed"
)

// Report is a user-submitted complaint about a link.
type Report struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	Reason      string     `json:"reason"`
	ReporterIP  string     `json:"reporter_ip"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Appeal contests a link's malicious flag.
type Appeal struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	Reason      string     `json:"reason"`
	AppellantIP string     `json:"appellant_ip"`
	ContactInfo string     `json:"contact_info,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// IPAppeal contests an IP block.
type IPAppeal struct {
	ID          string     `json:"id"`
	IPAddress   string     `json:"ip_address"`
	Reason      string     `json:"reason"`
	AppellantIP string     `json:"appellant_ip"`
	ContactInfo string     `json:"contact_info,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// IPBlock is the authoritative record of an address-level ban. A block whose
// ExpiresAt has passed is treated as inactive without requiring a write.
type IPBlock struct {
	IPAddress string     `json:"ip_address"`
	Reason    string     `json:"reason"`
	Status    string     `json:"status"`
	BlockedAt time.Time  `json:"blocked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the block is in force at the given instant.
func (b *IPBlock) ActiveAt(now time.Time) bool {
	if b == nil || b.Status != BlockActive {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// SystemStats is the admin dashboard aggregate.
type SystemStats struct {
	TotalLinks       int64 `json:"total_links"`
	TotalClicks      int64 `json:"total_clicks"`
	TotalVisits      int64 `json:"total_visits"`
	ActiveUsers      int64 `json:"active_users"`
	BlockedIPs       int64 `json:"blocked_ips"`
	PendingReports   int64 `json:"pending_reports"`
	PendingAppeals   int64 `json:"pending_appeals"`
	PendingIPAppeals int64 `json:"pending_ip_appeals"`
	PanicMode        bool  `json:"panic_mode"`
}
