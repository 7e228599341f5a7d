package models

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store mutations that target a missing row.
// Lookups signal absence with a nil result instead.
var ErrNotFound = errors.New("not found")

// Store is the durable-store interface consumed by the service layers. The
// backing database is the sole source of truth; cache entries layered on top
// of it are disposable projections.
//
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	// Links
	GetLink(ctx context.Context, shortCode string) (*Link, error)
	CreateLink(ctx context.Context, link *Link) error
	// DeleteLink is idempotent: deleting a missing link is a success.
	DeleteLink(ctx context.Context, shortCode string) error
	SetLinkMalicious(ctx context.Context, shortCode string, malicious bool) error
	// FindRecentLink returns the newest link with the same original URL
	// created by the same user since the given time.
	FindRecentLink(ctx context.Context, originalURL, userID string, since time.Time) (*Link, error)
	ListLinksByUser(ctx context.Context, userID string, limit int) ([]Link, error)
	ListLinksByIP(ctx context.Context, ip string, limit int) ([]Link, error)
	SearchLinks(ctx context.Context, query string, offset, limit int) ([]Link, int64, error)
	// ListInactiveLinks returns links created before the cutoff that have
	// never been clicked.
	ListInactiveLinks(ctx context.Context, before time.Time) ([]Link, error)

	// Click analytics. RecordVisit must apply the counter increment, the
	// unique-visitor check and the visit insert as one atomic transaction.
	RecordVisit(ctx context.Context, shortCode string, v Visit) error
	GetLinkAnalytics(ctx context.Context, shortCode string) (*LinkAnalytics, error)

	// Reports
	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	FindRecentReport(ctx context.Context, shortCode, reporterIP string, since time.Time) (*Report, error)
	ResolveReport(ctx context.Context, id, status string, resolvedAt time.Time) error
	CountPendingReports(ctx context.Context, shortCode string) (int, error)
	CountDistinctReporters(ctx context.Context, shortCode string) (int, error)
	ListPendingReports(ctx context.Context, limit int) ([]Report, error)

	// URL appeals
	CreateAppeal(ctx context.Context, a *Appeal) error
	GetAppeal(ctx context.Context, id string) (*Appeal, error)
	FindPendingAppeal(ctx context.Context, shortCode, appellantIP string) (*Appeal, error)
	ResolveAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error
	ListPendingAppeals(ctx context.Context, limit int) ([]Appeal, error)

	// IP appeals
	CreateIPAppeal(ctx context.Context, a *IPAppeal) error
	GetIPAppeal(ctx context.Context, id string) (*IPAppeal, error)
	FindPendingIPAppeal(ctx context.Context, ip, appellantIP string) (*IPAppeal, error)
	ResolveIPAppeal(ctx context.Context, id, status string, resolvedAt time.Time) error
	ListPendingIPAppeals(ctx context.Context, limit int) ([]IPAppeal, error)

	// IP blocks
	GetIPBlock(ctx context.Context, ip string) (*IPBlock, error)
	UpsertIPBlock(ctx context.Context, b *IPBlock) error
	// RemoveIPBlock soft-removes a block; removing a missing or already
	// removed block is a success.
	RemoveIPBlock(ctx context.Context, ip string) error
	ListActiveIPBlocks(ctx context.Context) ([]IPBlock, error)

	// Settings
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	UpsertSetting(ctx context.Context, key, value string) error

	// Stats aggregates the admin dashboard counters. PanicMode is left for
	// the caller to fill in.
	Stats(ctx context.Context, activeSince time.Time) (*SystemStats, error)
}
