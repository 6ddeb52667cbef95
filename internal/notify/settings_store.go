package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationSettings is a tenant's lead-alert configuration. OwnerEmail is
// the first owner user of the tenant; AdditionalEmails is the raw
// comma-separated string the tenant typed into their settings page,
// unvalidated. Each entry is trimmed and checked at send time.
type NotificationSettings struct {
	TenantName       string
	Enabled          bool
	OwnerEmail       string
	OwnerName        string
	AdditionalEmails string
}

var ErrTenantSettingsNotFound = errors.New("notify: tenant settings not found")

// TenantSettingsStore loads per-tenant notification settings.
type TenantSettingsStore interface {
	Get(ctx context.Context, tenantID string) (*NotificationSettings, error)
}

type settingsQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSettingsStore reads settings from the tenants and tenant_users
// tables.
type PostgresSettingsStore struct {
	pool settingsQuerier
}

func NewPostgresSettingsStore(pool *pgxpool.Pool) *PostgresSettingsStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresSettingsStore{pool: pool}
}

func newPostgresSettingsStoreWithQuerier(q settingsQuerier) *PostgresSettingsStore {
	if q == nil {
		panic("notify: querier required")
	}
	return &PostgresSettingsStore{pool: q}
}

func (s *PostgresSettingsStore) Get(ctx context.Context, tenantID string) (*NotificationSettings, error) {
	var out NotificationSettings
	err := s.pool.QueryRow(ctx, `
		SELECT t.name, t.email_notifications_enabled, t.additional_notification_emails,
		       COALESCE(u.email, ''), COALESCE(u.name, '')
		FROM tenants t
		LEFT JOIN LATERAL (
			SELECT email, name FROM tenant_users
			WHERE tenant_id = t.id AND role = 'owner'
			ORDER BY created_at ASC LIMIT 1
		) u ON true
		WHERE t.id = $1`, tenantID).Scan(
		&out.TenantName, &out.Enabled, &out.AdditionalEmails, &out.OwnerEmail, &out.OwnerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notify: load settings: %w", err)
	}
	return &out, nil
}

// StaticSettingsStore serves fixed settings, used in tests and single-tenant
// deployments.
type StaticSettingsStore struct {
	Settings map[string]*NotificationSettings
}

func (s *StaticSettingsStore) Get(_ context.Context, tenantID string) (*NotificationSettings, error) {
	cfg, ok := s.Settings[tenantID]
	if !ok {
		return nil, ErrTenantSettingsNotFound
	}
	return cfg, nil
}
