package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/models"
)

// Postgres wraps a postgres DB connection. It is the authoritative store for
// links, reports, appeals, IP blocks and system settings.
type Postgres struct {
	DB *sql.DB
}

var _ models.Store = (*Postgres)(nil)

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS links (
    id SERIAL PRIMARY KEY,
    short_code TEXT NOT NULL UNIQUE,
    original_url TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    user_id TEXT,
    is_malicious BOOLEAN NOT NULL DEFAULT FALSE,
    safety_score INT NOT NULL DEFAULT 0,
    safety_category TEXT,
    safety_warnings TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS link_analytics (
    link_id INT PRIMARY KEY REFERENCES links(id) ON DELETE CASCADE,
    clicks BIGINT NOT NULL DEFAULT 0,
    unique_visitors BIGINT NOT NULL DEFAULT 0,
    last_clicked_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS visits (
    id SERIAL PRIMARY KEY,
    link_id INT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
    ip_address TEXT NOT NULL,
    user_agent TEXT,
    referer TEXT,
    device TEXT,
    country TEXT,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reports (
    id UUID PRIMARY KEY,
    short_code TEXT NOT NULL,
    reason TEXT NOT NULL,
    reporter_ip TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT 'other',
    description TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS appeals (
    id UUID PRIMARY KEY,
    short_code TEXT NOT NULL,
    reason TEXT NOT NULL,
    appellant_ip TEXT NOT NULL,
    contact_info TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS ip_appeals (
    id UUID PRIMARY KEY,
    ip_address TEXT NOT NULL,
    reason TEXT NOT NULL,
    appellant_ip TEXT NOT NULL,
    contact_info TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS ip_blocks (
    ip_address TEXT PRIMARY KEY,
    reason TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    blocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NULL
);

CREATE TABLE IF NOT EXISTS system_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_original_url ON links (original_url);
CREATE INDEX IF NOT EXISTS idx_links_ip_address ON links (ip_address);
CREATE INDEX IF NOT EXISTS idx_links_user_id ON links (user_id);
CREATE INDEX IF NOT EXISTS idx_links_created_at ON links (created_at);
CREATE INDEX IF NOT EXISTS idx_visits_link_ip ON visits (link_id, ip_address);
CREATE INDEX IF NOT EXISTS idx_reports_short_code ON reports (short_code, status);
CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports (short_code, reporter_ip, created_at);
CREATE INDEX IF NOT EXISTS idx_appeals_subject ON appeals (short_code, appellant_ip, status);
CREATE INDEX IF NOT EXISTS idx_ip_appeals_subject ON ip_appeals (ip_address, appellant_ip, status);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const linkColumns = `id, short_code, original_url, ip_address, COALESCE(user_id, ''), is_malicious,
	safety_score, COALESCE(safety_category, ''), COALESCE(safety_warnings, '[]'), created_at, expires_at`

func scanLink(row interface{ Scan(...any) error }) (*models.Link, error) {
	var l models.Link
	var warnings string
	if err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.IPAddress, &l.UserID, &l.IsMalicious,
		&l.SafetyScore, &l.SafetyCategory, &warnings, &l.CreatedAt, &l.ExpiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(warnings), &l.SafetyWarnings); err != nil {
		l.SafetyWarnings = nil
	}
	return &l, nil
}

// GetLink fetches a link by short code. Missing links return (nil, nil).
func (p *Postgres) GetLink(ctx context.Context, shortCode string) (*models.Link, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code = $1`, shortCode)
	l, err := scanLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

// CreateLink inserts a link and its empty analytics row.
func (p *Postgres) CreateLink(ctx context.Context, link *models.Link) error {
	warnings, err := json.Marshal(link.SafetyWarnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	var userID any
	if link.UserID != "" {
		userID = link.UserID
	}
	err = p.DB.QueryRowContext(ctx,
		`INSERT INTO links (short_code, original_url, ip_address, user_id, is_malicious, safety_score, safety_category, safety_warnings, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		link.ShortCode, link.OriginalURL, link.IPAddress, userID, link.IsMalicious,
		link.SafetyScore, link.SafetyCategory, string(warnings), link.ExpiresAt,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	if _, err := p.DB.ExecContext(ctx,
		`INSERT INTO link_analytics (link_id) VALUES ($1) ON CONFLICT (link_id) DO NOTHING`, link.ID); err != nil {
		return fmt.Errorf("insert analytics: %w", err)
	}
	return nil
}

// DeleteLink removes a link. Missing links are a success.
func (p *Postgres) DeleteLink(ctx context.Context, shortCode string) error {
	if _, err := p.DB.ExecContext(ctx, `DELETE FROM links WHERE short_code = $1`, shortCode); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// SetLinkMalicious flips a link's moderation flag.
func (p *Postgres) SetLinkMalicious(ctx context.Context, shortCode string, malicious bool) error {
	res, err := p.DB.ExecContext(ctx, `UPDATE links SET is_malicious = $2 WHERE short_code = $1`, shortCode, malicious)
	if err != nil {
		return fmt.Errorf("set malicious: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindRecentLink returns the newest link for the same URL and user since the cutoff.
func (p *Postgres) FindRecentLink(ctx context.Context, originalURL, userID string, since time.Time) (*models.Link, error) {
	row := p.DB.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE original_url = $1 AND COALESCE(user_id, '') = $2 AND created_at >= $3
		 ORDER BY created_at DESC LIMIT 1`,
		originalURL, userID, since)
	l, err := scanLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent link: %w", err)
	}
	return l, nil
}

func (p *Postgres) queryLinks(ctx context.Context, query string, args ...any) ([]models.Link, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// ListLinksByUser returns a user's links, newest first.
func (p *Postgres) ListLinksByUser(ctx context.Context, userID string, limit int) ([]models.Link, error) {
	links, err := p.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list links by user: %w", err)
	}
	return links, nil
}

// ListLinksByIP returns links created by an IP that carry no user ID.
func (p *Postgres) ListLinksByIP(ctx context.Context, ip string, limit int) ([]models.Link, error) {
	links, err := p.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE ip_address = $1 AND user_id IS NULL ORDER BY created_at DESC LIMIT $2`,
		ip, limit)
	if err != nil {
		return nil, fmt.Errorf("list links by ip: %w", err)
	}
	return links, nil
}

// SearchLinks returns a page of links matching the query (or all links when
// the query is empty) plus the total match count.
func (p *Postgres) SearchLinks(ctx context.Context, query string, offset, limit int) ([]models.Link, int64, error) {
	pattern := "%" + query + "%"
	var total int64
	if err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM links WHERE $1 = '' OR short_code ILIKE $2 OR original_url ILIKE $2`,
		query, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count links: %w", err)
	}
	links, err := p.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE $1 = '' OR short_code ILIKE $2 OR original_url ILIKE $2
		 ORDER BY created_at DESC OFFSET $3 LIMIT $4`,
		query, pattern, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("search links: %w", err)
	}
	return links, total, nil
}

// ListInactiveLinks returns never-clicked links created before the cutoff.
func (p *Postgres) ListInactiveLinks(ctx context.Context, before time.Time) ([]models.Link, error) {
	links, err := p.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links l
		 WHERE l.created_at < $1
		   AND NOT EXISTS (SELECT 1 FROM link_analytics a WHERE a.link_id = l.id AND a.clicks > 0)`,
		before)
	if err != nil {
		return nil, fmt.Errorf("list inactive links: %w", err)
	}
	return links, nil
}

// RecordVisit applies the click counter increment, the unique-visitor check
// and the visit insert as one transaction so concurrent clicks cannot
// double-count unique visitors.
func (p *Postgres) RecordVisit(ctx context.Context, shortCode string, v models.Visit) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin visit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var linkID int
	err = tx.QueryRowContext(ctx, `SELECT id FROM links WHERE short_code = $1 FOR UPDATE`, shortCode).Scan(&linkID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("visit link lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO link_analytics (link_id, clicks, last_clicked_at) VALUES ($1, 1, NOW())
		 ON CONFLICT (link_id) DO UPDATE SET clicks = link_analytics.clicks + 1, last_clicked_at = NOW()`,
		linkID); err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}

	var seen bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM visits WHERE link_id = $1 AND ip_address = $2)`,
		linkID, v.IPAddress).Scan(&seen); err != nil {
		return fmt.Errorf("unique visitor check: %w", err)
	}
	if !seen {
		if _, err := tx.ExecContext(ctx,
			`UPDATE link_analytics SET unique_visitors = unique_visitors + 1 WHERE link_id = $1`,
			linkID); err != nil {
			return fmt.Errorf("increment unique visitors: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO visits (link_id, ip_address, user_agent, referer, device, country)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		linkID, v.IPAddress, v.UserAgent, v.Referer, v.Device, v.Country); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}

	return tx.Commit()
}

// GetLinkAnalytics fetches the aggregate counters for a link.
func (p *Postgres) GetLinkAnalytics(ctx context.Context, shortCode string) (*models.LinkAnalytics, error) {
	var a models.LinkAnalytics
	err := p.DB.QueryRowContext(ctx,
		`SELECT a.link_id, a.clicks, a.unique_visitors, a.last_clicked_at
		 FROM link_analytics a JOIN links l ON l.id = a.link_id
		 WHERE l.short_code = $1`, shortCode).
		Scan(&a.LinkID, &a.Clicks, &a.UniqueVisitors, &a.LastClickedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	return &a, nil
}

// CreateReport inserts a report row.
func (p *Postgres) CreateReport(ctx context.Context, r *models.Report) error {
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO reports (id, short_code, reason, reporter_ip, category, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		r.ID, r.ShortCode, r.Reason, r.ReporterIP, r.Category, r.Description, r.Status).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport fetches a report by ID. Missing reports return (nil, nil).
func (p *Postgres) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var r models.Report
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, short_code, reason, reporter_ip, category, COALESCE(description, ''), status, created_at, resolved_at
		 FROM reports WHERE id = $1`, id).
		Scan(&r.ID, &r.ShortCode, &r.Reason, &r.ReporterIP, &r.Category, &r.Description, &r.Status, &r.CreatedAt, &r.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &r, nil
}

// FindRecentReport returns any report by the same reporter against the same
// link since the cutoff.
func (p *Postgres) FindRecentReport(ctx context.Context, shortCode, reporterIP string, since time.Time) (*models.Report, error) {
	var r models.Report
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, short_code, reason, reporter_ip, category, COALESCE(description, ''), status, created_at, resolved_at
		 FROM reports WHERE short_code = $1 AND reporter_ip = $2 AND created_at >= $3 LIMIT 1`,
		shortCode, reporterIP, since).
		Scan(&r.ID, &r.ShortCode, &r.Reason, &r.ReporterIP, &r.Category, &r.Description, &r.Status, &r.CreatedAt, &r.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent report: %w", err)
	}
	return &r, nil
}

// ResolveReport stamps a report's terminal status.
func (p *Postgres) ResolveReport(ctx context.Context, id, status string, resolvedAt time.Time) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE reports SET status = $2, resolved_at = $3 WHERE id = $1`, id, status, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountPendingReports counts pending reports for a link.
func (p *Postgres) CountPendingReports(ctx context.Context, shortCode string) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE short_code = $1 AND status = 'pending'`, shortCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending reports: %w", err)
	}
	return n, nil
}

// CountDistinctReporters counts distinct reporter IPs among a link's pending reports.
func (p *Postgres) CountDistinctReporters(ctx context.Context, shortCode string) (int, error) {
	var n int
	err := p.DB.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT reporter_ip) FROM reports WHERE short_code = $1 AND status = 'pending'`, shortCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct reporters: %w", err)
	}
	return n, nil
}

// ListPendingReports returns pending reports, newest first.
func (p *Postgres) ListPendingReports(ctx context.Context, limit int) ([]models.Report, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, short_code, reason, reporter_ip, category, COALESCE(description, ''), status, created_at, resolved_at
		 FROM reports WHERE status = 'pending' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reports: %w", err)
	}
	defer rows.Close()

	var out []models.Report
	for rows.Next() {
		var r models.Report
		if err := rows.Scan(&r.ID, &r.ShortCode, &r.Reason, &r.ReporterIP, &r.Category, &r.Description, &r.Status, &r.CreatedAt, &r.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateAppeal inserts a URL appeal row.
func (p *Postgres) CreateAppeal(ctx context.Context, a *models.Appeal) error {
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO appeals (id, short_code, reason, appellant_ip, contact_info, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		a.ID, a.ShortCode, a.Reason, a.AppellantIP, a.ContactInfo, a.Status).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appeal: %w", err)
	}
	return nil
}

// GetAppeal fetches a URL appeal by ID. Missing appeals return (nil, nil).
func (p *Postgres) GetAppeal(ctx context.Context, id string) (*models.Appeal, error) {
	var a models.Appeal
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, short_code, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM appeals WHERE id = $1`, id).
		Scan(&a.ID, &a.ShortCode, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appeal: %w", err)
	}
	return &a, nil
}

// FindPendingAppeal returns a pending appeal by the same appellant against the same link.
func (p *Postgres) FindPendingAppeal(ctx context.Context, shortCode, appellantIP string) (*models.Appeal, error) {
	var a models.Appeal
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, short_code, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM appeals WHERE short_code = $1 AND appellant_ip = $2 AND status = 'pending' LIMIT 1`,
		shortCode, appellantIP).
		Scan(&a.ID, &a.ShortCode, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending appeal: %w", err)
	}
	return &a, nil
}

// ResolveAppeal stamps a URL appeal's terminal status.
func (p *Postgres) ResolveAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE appeals SET status = $2, resolved_at = $3 WHERE id = $1`, id, status, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve appeal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListPendingAppeals returns pending URL appeals, newest first.
func (p *Postgres) ListPendingAppeals(ctx context.Context, limit int) ([]models.Appeal, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, short_code, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM appeals WHERE status = 'pending' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending appeals: %w", err)
	}
	defer rows.Close()

	var out []models.Appeal
	for rows.Next() {
		var a models.Appeal
		if err := rows.Scan(&a.ID, &a.ShortCode, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateIPAppeal inserts an IP appeal row.
func (p *Postgres) CreateIPAppeal(ctx context.Context, a *models.IPAppeal) error {
	err := p.DB.QueryRowContext(ctx,
		`INSERT INTO ip_appeals (id, ip_address, reason, appellant_ip, contact_info, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		a.ID, a.IPAddress, a.Reason, a.AppellantIP, a.ContactInfo, a.Status).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ip appeal: %w", err)
	}
	return nil
}

// GetIPAppeal fetches an IP appeal by ID. Missing appeals return (nil, nil).
func (p *Postgres) GetIPAppeal(ctx context.Context, id string) (*models.IPAppeal, error) {
	var a models.IPAppeal
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, ip_address, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM ip_appeals WHERE id = $1`, id).
		Scan(&a.ID, &a.IPAddress, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ip appeal: %w", err)
	}
	return &a, nil
}

// FindPendingIPAppeal returns a pending appeal by the same appellant against the same blocked IP.
func (p *Postgres) FindPendingIPAppeal(ctx context.Context, ip, appellantIP string) (*models.IPAppeal, error) {
	var a models.IPAppeal
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, ip_address, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM ip_appeals WHERE ip_address = $1 AND appellant_ip = $2 AND status = 'pending' LIMIT 1`,
		ip, appellantIP).
		Scan(&a.ID, &a.IPAddress, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending ip appeal: %w", err)
	}
	return &a, nil
}

// ResolveIPAppeal stamps an IP appeal's terminal status.
func (p *Postgres) ResolveIPAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error {
	res, err := p.DB.ExecContext(ctx,
		`UPDATE ip_appeals SET status = $2, resolved_at = $3 WHERE id = $1`, id, status, resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve ip appeal: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListPendingIPAppeals returns pending IP appeals, newest first.
func (p *Postgres) ListPendingIPAppeals(ctx context.Context, limit int) ([]models.IPAppeal, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT id, ip_address, reason, appellant_ip, COALESCE(contact_info, ''), status, created_at, resolved_at
		 FROM ip_appeals WHERE status = 'pending' ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ip appeals: %w", err)
	}
	defer rows.Close()

	var out []models.IPAppeal
	for rows.Next() {
		var a models.IPAppeal
		if err := rows.Scan(&a.ID, &a.IPAddress, &a.Reason, &a.AppellantIP, &a.ContactInfo, &a.Status, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetIPBlock fetches a block record by IP. Missing blocks return (nil, nil).
func (p *Postgres) GetIPBlock(ctx context.Context, ip string) (*models.IPBlock, error) {
	var b models.IPBlock
	err := p.DB.QueryRowContext(ctx,
		`SELECT ip_address, reason, status, blocked_at, expires_at FROM ip_blocks WHERE ip_address = $1`, ip).
		Scan(&b.IPAddress, &b.Reason, &b.Status, &b.BlockedAt, &b.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ip block: %w", err)
	}
	return &b, nil
}

// UpsertIPBlock creates or refreshes a block record. Reblocking an existing
// IP updates reason, expiry, status and blocked_at in place.
func (p *Postgres) UpsertIPBlock(ctx context.Context, b *models.IPBlock) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO ip_blocks (ip_address, reason, status, blocked_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (ip_address) DO UPDATE
		 SET reason = EXCLUDED.reason, status = EXCLUDED.status,
		     blocked_at = EXCLUDED.blocked_at, expires_at = EXCLUDED.expires_at`,
		b.IPAddress, b.Reason, b.Status, b.BlockedAt, b.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert ip block: %w", err)
	}
	return nil
}

// RemoveIPBlock soft-removes a block. A missing record is a success.
func (p *Postgres) RemoveIPBlock(ctx context.Context, ip string) error {
	if _, err := p.DB.ExecContext(ctx,
		`UPDATE ip_blocks SET status = 'removed' WHERE ip_address = $1`, ip); err != nil {
		return fmt.Errorf("remove ip block: %w", err)
	}
	return nil
}

// ListActiveIPBlocks returns active blocks, newest first.
func (p *Postgres) ListActiveIPBlocks(ctx context.Context) ([]models.IPBlock, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT ip_address, reason, status, blocked_at, expires_at
		 FROM ip_blocks WHERE status = 'active' ORDER BY blocked_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active ip blocks: %w", err)
	}
	defer rows.Close()

	var out []models.IPBlock
	for rows.Next() {
		var b models.IPBlock
		if err := rows.Scan(&b.IPAddress, &b.Reason, &b.Status, &b.BlockedAt, &b.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetSetting fetches a system setting value.
func (p *Postgres) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.DB.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// UpsertSetting writes a system setting value.
func (p *Postgres) UpsertSetting(ctx context.Context, key, value string) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO system_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// Stats aggregates the admin dashboard counters. PanicMode is left for the
// caller to fill in from the settings service.
func (p *Postgres) Stats(ctx context.Context, activeSince time.Time) (*models.SystemStats, error) {
	stats := &models.SystemStats{}
	err := p.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM links),
			(SELECT COALESCE(SUM(clicks), 0) FROM link_analytics),
			(SELECT COUNT(*) FROM visits),
			(SELECT COUNT(DISTINCT COALESCE(NULLIF(user_id, ''), ip_address)) FROM links WHERE created_at >= $1),
			(SELECT COUNT(*) FROM ip_blocks WHERE status = 'active'),
			(SELECT COUNT(*) FROM reports WHERE status = 'pending'),
			(SELECT COUNT(*) FROM appeals WHERE status = 'pending'),
			(SELECT COUNT(*) FROM ip_appeals WHERE status = 'pending')`,
		activeSince).
		Scan(&stats.TotalLinks, &stats.TotalClicks, &stats.TotalVisits, &stats.ActiveUsers,
			&stats.BlockedIPs, &stats.PendingReports, &stats.PendingAppeals, &stats.PendingIPAppeals)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
