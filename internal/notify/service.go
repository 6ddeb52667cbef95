package notify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/internal/observability/metrics"
	"github.com/estatechat/platform/pkg/logging"
)

// recipientRE is intentionally stricter than the extractor used in chat: a
// notification address must be the whole string, not a substring of one.
var recipientRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Service emails tenant staff when a conversation produces a lead.
type Service struct {
	email    EmailSender
	settings TenantSettingsStore
	metrics  *metrics.ChatMetrics
	logger   *logging.Logger

	dashboardBaseURL string
	sendTimeout      time.Duration
}

type ServiceOptions struct {
	Email    EmailSender
	Settings TenantSettingsStore
	Metrics  *metrics.ChatMetrics
	Logger   *logging.Logger

	DashboardBaseURL string
	SendTimeout      time.Duration
}

func NewService(opts ServiceOptions) *Service {
	if opts.Email == nil {
		opts.Email = NewStubEmailSender(opts.Logger)
	}
	if opts.Settings == nil {
		panic("notify: settings store required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &Service{
		email:            opts.Email,
		settings:         opts.Settings,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		dashboardBaseURL: strings.TrimRight(opts.DashboardBaseURL, "/"),
		sendTimeout:      opts.SendTimeout,
	}
}

// NotifyNewLead emails every configured recipient about the lead. A tenant
// with notifications disabled gets nothing, by choice, and that is not an
// error. Individual send failures are aggregated so one bad mailbox does not
// hide the others.
func (s *Service) NotifyNewLead(ctx context.Context, lead leads.Lead) error {
	cfg, err := s.settings.Get(ctx, lead.TenantID)
	if err != nil {
		return fmt.Errorf("notify: load settings for tenant %s: %w", lead.TenantID, err)
	}

	if !cfg.Enabled {
		s.logger.Info("lead notifications disabled for tenant, skipping",
			"tenant_id", lead.TenantID, "lead_id", lead.ID)
		return nil
	}

	recipients := s.resolveRecipients(cfg, lead.TenantID)
	if len(recipients) == 0 {
		s.logger.Warn("no valid notification recipients for tenant",
			"tenant_id", lead.TenantID, "lead_id", lead.ID)
		return nil
	}

	subject := fmt.Sprintf("New lead: %s (%s)", lead.Name, lead.Intent)
	body := s.textBody(cfg, lead)
	html := s.htmlBody(cfg, lead)

	var failed int
	for _, recipient := range recipients {
		msg := EmailMessage{
			To:      recipient.email,
			ToName:  recipient.name,
			Subject: subject,
			Body:    body,
			HTML:    html,
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
		err := s.email.Send(sendCtx, msg)
		cancel()
		if err != nil {
			failed++
			s.metrics.ObserveNotification("failed")
			s.logger.Error("failed to send lead notification",
				"tenant_id", lead.TenantID, "lead_id", lead.ID, "to", recipient.email, "error", err)
			continue
		}
		s.metrics.ObserveNotification("sent")
	}

	if failed > 0 {
		return fmt.Errorf("notify: %d of %d notification(s) failed", failed, len(recipients))
	}
	return nil
}

type recipient struct {
	email string
	name  string
}

// resolveRecipients merges the owner with the comma-separated extra
// addresses, dropping anything that is not a plausible email and deduping
// case-insensitively.
func (s *Service) resolveRecipients(cfg *NotificationSettings, tenantID string) []recipient {
	var out []recipient
	seen := make(map[string]struct{})

	add := func(email, name string) {
		email = strings.TrimSpace(email)
		if email == "" {
			return
		}
		if !recipientRE.MatchString(email) {
			s.logger.Warn("skipping invalid notification recipient",
				"tenant_id", tenantID, "address", email)
			return
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, recipient{email: email, name: name})
	}

	add(cfg.OwnerEmail, cfg.OwnerName)
	for _, extra := range strings.Split(cfg.AdditionalEmails, ",") {
		add(extra, "")
	}
	return out
}

func (s *Service) textBody(cfg *NotificationSettings, lead leads.Lead) string {
	return fmt.Sprintf(`A new lead just came through your chat widget!

Name: %s
Email: %s
Interested in: %s
Lead score: %d/100

View the full conversation: %s

— EstateChat for %s`,
		lead.Name, lead.Email, lead.Intent, lead.Score, s.leadURL(lead), cfg.TenantName)
}

func (s *Service) htmlBody(cfg *NotificationSettings, lead leads.Lead) string {
	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #2563eb;">New lead from your chat widget</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Name:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Email:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><a href="mailto:%s">%s</a></td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Interested in:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Score:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d/100</td></tr>
</table>
<p><a href="%s" style="background: #2563eb; color: white; padding: 10px 16px; border-radius: 6px; text-decoration: none;">View conversation</a></p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— EstateChat for %s</p>
</div>`,
		lead.Name, lead.Email, lead.Email, lead.Intent, lead.Score, s.leadURL(lead), cfg.TenantName)
}

func (s *Service) leadURL(lead leads.Lead) string {
	if s.dashboardBaseURL == "" {
		return fmt.Sprintf("/admin/tenants/%s/leads/%s", lead.TenantID, lead.ID)
	}
	return fmt.Sprintf("%s/admin/tenants/%s/leads/%s", s.dashboardBaseURL, lead.TenantID, lead.ID)
}
