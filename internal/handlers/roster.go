package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"lookout/pkg/cache"
	"lookout/pkg/logging"
	"lookout/pkg/models"
)

// Roster resolves monitored servers and registers curators on first sight.
// Both lookups sit on the hot event path, so results are cached with
// singleflighted loads. Curator hits are cached briefly, which means
// last_seen_at advances at cache-TTL granularity instead of every message.
type Roster struct {
	db       *sql.DB
	servers  *cache.Cache
	curators *cache.Cache
	logger   logging.Logger
}

func NewRoster(db *sql.DB, logger logging.Logger) *Roster {
	return &Roster{
		db: db,
		servers: cache.New(cache.Options{
			TTL:                  30 * time.Second,
			StaleWhileRevalidate: 30 * time.Second,
			NegativeTTL:          10 * time.Second,
			MaxEntries:           512,
		}, cache.MetricsHooks{}),
		curators: cache.New(cache.Options{
			TTL:        60 * time.Second,
			MaxEntries: 4096,
		}, cache.MetricsHooks{}),
		logger: logger,
	}
}

// Server returns the monitored server row, or nil when the server is not
// registered. Unknown servers are negative-cached so a flood of events from
// an unmonitored guild does not hammer Postgres.
func (r *Roster) Server(ctx context.Context, serverID string) (*models.MonitoredServer, error) {
	value, ok, err := r.servers.Get(ctx, serverID, r.loadServer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return value.(*models.MonitoredServer), nil
}

func (r *Roster) loadServer(ctx context.Context, serverID string) (interface{}, bool, error) {
	server := &models.MonitoredServer{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, curator_role_id, help_channel_ids, task_channel_ids,
		       is_active, created_at, updated_at
		FROM servers
		WHERE id = $1`, serverID).Scan(
		&server.ID, &server.Name, &server.CuratorRoleID,
		pq.Array(&server.HelpChannelIDs), pq.Array(&server.TaskChannelIDs),
		&server.IsActive, &server.CreatedAt, &server.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load server %s: %w", serverID, err)
	}
	return server, true, nil
}

// EnsureCurator upserts the curator row for a platform user seen acting as a
// curator and returns it. Deactivated curators are returned as-is, never
// resurrected; callers check IsActive.
func (r *Roster) EnsureCurator(ctx context.Context, serverID, platformUserID, displayName string, seenAt time.Time) (*models.Curator, error) {
	key := serverID + ":" + platformUserID
	value, ok, err := r.curators.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, bool, error) {
		return r.upsertCurator(ctx, serverID, platformUserID, displayName, seenAt)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("upsert curator %s/%s: no row returned", serverID, platformUserID)
	}
	return value.(*models.Curator), nil
}

func (r *Roster) upsertCurator(ctx context.Context, serverID, platformUserID, displayName string, seenAt time.Time) (interface{}, bool, error) {
	curator := &models.Curator{}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO curators (server_id, platform_user_id, display_name, last_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (server_id, platform_user_id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), curators.display_name),
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = NOW()
		RETURNING id, server_id, platform_user_id, display_name, curator_type,
		          faction_tags, is_active, last_seen_at, created_at, updated_at`,
		serverID, platformUserID, displayName, seenAt).Scan(
		&curator.ID, &curator.ServerID, &curator.PlatformUserID, &curator.DisplayName,
		&curator.CuratorType, pq.Array(&curator.FactionTags), &curator.IsActive,
		&curator.LastSeenAt, &curator.CreatedAt, &curator.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("upsert curator %s/%s: %w", serverID, platformUserID, err)
	}
	return curator, true, nil
}
