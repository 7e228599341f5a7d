package models

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used by tests and by the
// service layers' unit coverage. All operations are guarded by a single
// mutex; it is not intended for production use.
type MemoryStore struct {
	mu sync.Mutex

	nextLinkID int
	links      map[string]*Link       // keyed by short code
	analytics  map[int]*LinkAnalytics // keyed by link ID
	visits     map[int][]Visit        // keyed by link ID
	reports    map[string]*Report     // keyed by report ID
	appeals    map[string]*Appeal     // keyed by appeal ID
	ipAppeals  map[string]*IPAppeal   // keyed by appeal ID
	ipBlocks   map[string]*IPBlock    // keyed by IP
	settings   map[string]string

	// Failing forces every operation to return this error, simulating a
	// durable-store outage.
	Failing error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextLinkID: 1,
		links:      make(map[string]*Link),
		analytics:  make(map[int]*LinkAnalytics),
		visits:     make(map[int][]Visit),
		reports:    make(map[string]*Report),
		appeals:    make(map[string]*Appeal),
		ipAppeals:  make(map[string]*IPAppeal),
		ipBlocks:   make(map[string]*IPBlock),
		settings:   make(map[string]string),
	}
}

func copyLink(l *Link) *Link {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (m *MemoryStore) GetLink(ctx context.Context, shortCode string) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	return copyLink(m.links[shortCode]), nil
}

func (m *MemoryStore) CreateLink(ctx context.Context, link *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if link.ID == 0 {
		link.ID = m.nextLinkID
		m.nextLinkID++
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	m.links[link.ShortCode] = copyLink(link)
	m.analytics[link.ID] = &LinkAnalytics{LinkID: link.ID}
	return nil
}

func (m *MemoryStore) DeleteLink(ctx context.Context, shortCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if l, ok := m.links[shortCode]; ok {
		delete(m.analytics, l.ID)
		delete(m.visits, l.ID)
		delete(m.links, shortCode)
	}
	return nil
}

func (m *MemoryStore) SetLinkMalicious(ctx context.Context, shortCode string, malicious bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	l, ok := m.links[shortCode]
	if !ok {
		return ErrNotFound
	}
	l.IsMalicious = malicious
	return nil
}

func (m *MemoryStore) FindRecentLink(ctx context.Context, originalURL, userID string, since time.Time) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	var newest *Link
	for _, l := range m.links {
		if l.OriginalURL != originalURL || l.UserID != userID || l.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || l.CreatedAt.After(newest.CreatedAt) {
			newest = l
		}
	}
	return copyLink(newest), nil
}

func (m *MemoryStore) listLinks(match func(*Link) bool, limit int) []Link {
	out := make([]Link, 0)
	for _, l := range m.links {
		if match(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) ListLinksByUser(ctx context.Context, userID string, limit int) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	return m.listLinks(func(l *Link) bool { return l.UserID == userID && userID != "" }, limit), nil
}

func (m *MemoryStore) ListLinksByIP(ctx context.Context, ip string, limit int) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	return m.listLinks(func(l *Link) bool { return l.IPAddress == ip && l.UserID == "" }, limit), nil
}

func (m *MemoryStore) SearchLinks(ctx context.Context, query string, offset, limit int) ([]Link, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, 0, m.Failing
	}
	q := strings.ToLower(query)
	all := m.listLinks(func(l *Link) bool {
		if q == "" {
			return true
		}
		return strings.Contains(strings.ToLower(l.ShortCode), q) ||
			strings.Contains(strings.ToLower(l.OriginalURL), q)
	}, 0)
	total := int64(len(all))
	if offset >= len(all) {
		return []Link{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *MemoryStore) ListInactiveLinks(ctx context.Context, before time.Time) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	return m.listLinks(func(l *Link) bool {
		if !l.CreatedAt.Before(before) {
			return false
		}
		a := m.analytics[l.ID]
		return a == nil || a.Clicks == 0
	}, 0), nil
}

func (m *MemoryStore) RecordVisit(ctx context.Context, shortCode string, v Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	l, ok := m.links[shortCode]
	if !ok {
		return nil
	}
	a := m.analytics[l.ID]
	if a == nil {
		a = &LinkAnalytics{LinkID: l.ID}
		m.analytics[l.ID] = a
	}
	now := time.Now()
	a.Clicks++
	a.LastClickedAt = &now
	seen := false
	for _, prev := range m.visits[l.ID] {
		if prev.IPAddress == v.IPAddress {
			seen = true
			break
		}
	}
	if !seen {
		a.UniqueVisitors++
	}
	v.LinkID = l.ID
	if v.Timestamp.IsZero() {
		v.Timestamp = now
	}
	m.visits[l.ID] = append(m.visits[l.ID], v)
	return nil
}

func (m *MemoryStore) GetLinkAnalytics(ctx context.Context, shortCode string) (*LinkAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	l, ok := m.links[shortCode]
	if !ok {
		return nil, nil
	}
	a := m.analytics[l.ID]
	if a == nil {
		return &LinkAnalytics{LinkID: l.ID}, nil
	}
	c := *a
	return &c, nil
}

func (m *MemoryStore) CreateReport(ctx context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	c := *r
	m.reports[r.ID] = &c
	return nil
}

func (m *MemoryStore) GetReport(ctx context.Context, id string) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	if r, ok := m.reports[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) FindRecentReport(ctx context.Context, shortCode, reporterIP string, since time.Time) (*Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	for _, r := range m.reports {
		if r.ShortCode == shortCode && r.ReporterIP == reporterIP && !r.CreatedAt.Before(since) {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ResolveReport(ctx context.Context, id, status string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	r, ok := m.reports[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.ResolvedAt = &resolvedAt
	return nil
}

func (m *MemoryStore) CountPendingReports(ctx context.Context, shortCode string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return 0, m.Failing
	}
	n := 0
	for _, r := range m.reports {
		if r.ShortCode == shortCode && r.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountDistinctReporters(ctx context.Context, shortCode string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return 0, m.Failing
	}
	ips := make(map[string]struct{})
	for _, r := range m.reports {
		if r.ShortCode == shortCode && r.Status == StatusPending {
			ips[r.ReporterIP] = struct{}{}
		}
	}
	return len(ips), nil
}

func (m *MemoryStore) ListPendingReports(ctx context.Context, limit int) ([]Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	out := make([]Report, 0)
	for _, r := range m.reports {
		if r.Status == StatusPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateAppeal(ctx context.Context, a *Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	c := *a
	m.appeals[a.ID] = &c
	return nil
}

func (m *MemoryStore) GetAppeal(ctx context.Context, id string) (*Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	if a, ok := m.appeals[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) FindPendingAppeal(ctx context.Context, shortCode, appellantIP string) (*Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	for _, a := range m.appeals {
		if a.ShortCode == shortCode && a.AppellantIP == appellantIP && a.Status == StatusPending {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ResolveAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	a, ok := m.appeals[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.ResolvedAt = &resolvedAt
	return nil
}

func (m *MemoryStore) ListPendingAppeals(ctx context.Context, limit int) ([]Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	out := make([]Appeal, 0)
	for _, a := range m.appeals {
		if a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateIPAppeal(ctx context.Context, a *IPAppeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	c := *a
	m.ipAppeals[a.ID] = &c
	return nil
}

func (m *MemoryStore) GetIPAppeal(ctx context.Context, id string) (*IPAppeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	if a, ok := m.ipAppeals[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) FindPendingIPAppeal(ctx context.Context, ip, appellantIP string) (*IPAppeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	for _, a := range m.ipAppeals {
		if a.IPAddress == ip && a.AppellantIP == appellantIP && a.Status == StatusPending {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ResolveIPAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	a, ok := m.ipAppeals[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.ResolvedAt = &resolvedAt
	return nil
}

func (m *MemoryStore) ListPendingIPAppeals(ctx context.Context, limit int) ([]IPAppeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	out := make([]IPAppeal, 0)
	for _, a := range m.ipAppeals {
		if a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetIPBlock(ctx context.Context, ip string) (*IPBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	if b, ok := m.ipBlocks[ip]; ok {
		c := *b
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) UpsertIPBlock(ctx context.Context, b *IPBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if b.BlockedAt.IsZero() {
		b.BlockedAt = time.Now()
	}
	c := *b
	m.ipBlocks[b.IPAddress] = &c
	return nil
}

func (m *MemoryStore) RemoveIPBlock(ctx context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	if b, ok := m.ipBlocks[ip]; ok {
		b.Status = BlockRemoved
	}
	return nil
}

func (m *MemoryStore) ListActiveIPBlocks(ctx context.Context) ([]IPBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	out := make([]IPBlock, 0)
	for _, b := range m.ipBlocks {
		if b.Status == BlockActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })
	return out, nil
}

func (m *MemoryStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return "", false, m.Failing
	}
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *MemoryStore) UpsertSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return m.Failing
	}
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) Stats(ctx context.Context, activeSince time.Time) (*SystemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failing != nil {
		return nil, m.Failing
	}
	stats := &SystemStats{TotalLinks: int64(len(m.links))}
	// Creator identity is the user ID when present, the IP otherwise.
	activeCreators := make(map[string]struct{})
	for _, l := range m.links {
		if l.CreatedAt.Before(activeSince) {
			continue
		}
		if l.UserID != "" {
			activeCreators[l.UserID] = struct{}{}
		} else {
			activeCreators[l.IPAddress] = struct{}{}
		}
	}
	stats.ActiveUsers = int64(len(activeCreators))
	for _, a := range m.analytics {
		stats.TotalClicks += a.Clicks
	}
	for _, vs := range m.visits {
		stats.TotalVisits += int64(len(vs))
	}
	for _, b := range m.ipBlocks {
		if b.Status == BlockActive {
			stats.BlockedIPs++
		}
	}
	for _, r := range m.reports {
		if r.Status == StatusPending {
			stats.PendingReports++
		}
	}
	for _, a := range m.appeals {
		if a.Status == StatusPending {
			stats.PendingAppeals++
		}
	}
	for _, a := range m.ipAppeals {
		if a.Status == StatusPending {
			stats.PendingIPAppeals++
		}
	}
	return stats, nil
}
