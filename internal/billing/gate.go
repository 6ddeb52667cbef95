package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/estatechat/platform/pkg/logging"
)

// UnavailableMessage is what a visitor sees when the tenant's subscription
// lapsed. It never mentions billing; the shortfall is the tenant's problem,
// not the visitor's.
const UnavailableMessage = "Chat is temporarily unavailable. Please check back soon or contact the site owner directly."

var ErrTenantNotFound = errors.New("billing: tenant not found")

// Gate decides whether a tenant's widget may serve chat right now.
type Gate interface {
	Allowed(ctx context.Context, tenantID string) (bool, error)
}

// SubscriptionGate reads the tenant's subscription status from Postgres.
// Active subscriptions and unexpired trials pass; everything else fails
// closed so a lapsed tenant stops generating leads immediately.
type SubscriptionGate struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

func NewSubscriptionGate(db *sql.DB, logger *logging.Logger) *SubscriptionGate {
	if db == nil {
		panic("billing: db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SubscriptionGate{db: db, logger: logger, now: time.Now}
}

func (g *SubscriptionGate) Allowed(ctx context.Context, tenantID string) (bool, error) {
	var status string
	var trialEndsAt sql.NullTime
	err := g.db.QueryRowContext(ctx, `
		SELECT subscription_status, trial_ends_at FROM tenants WHERE id = $1`, tenantID).Scan(
		&status, &trialEndsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrTenantNotFound
	}
	if err != nil {
		return false, fmt.Errorf("billing: lookup tenant: %w", err)
	}

	switch status {
	case "active":
		return true, nil
	case "trialing":
		if trialEndsAt.Valid && trialEndsAt.Time.After(g.now()) {
			return true, nil
		}
		g.logger.Info("trial expired, widget gated", "tenant_id", tenantID)
		return false, nil
	default:
		return false, nil
	}
}

// AlwaysAllow is the gate used in tests and single-tenant deployments.
type AlwaysAllow struct{}

func (AlwaysAllow) Allowed(context.Context, string) (bool, error) { return true, nil }
