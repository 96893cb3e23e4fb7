package notify

import (
	"context"
	"errors"
	"time"

	"lookout/pkg/logging"
)

// Alert is an unanswered help request crossing an escalation boundary.
// The scheduler persists the tier advance first and hands this payload over
// after, so a delivery failure never duplicates a notification.
type Alert struct {
	ServerID      string
	ServerName    string
	ChannelID     string
	RequesterID   string
	RequesterName string
	Excerpt       string
	// RoleID is the curator role to mention; empty falls back to @here.
	RoleID      string
	Elapsed     time.Duration
	Tier        int
	TierLabel   string
	MentionedAt time.Time
}

// Digest summarizes a finished rating period for the admin channel.
type Digest struct {
	ServerID       string
	ServerName     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Entries        []DigestEntry
	TotalPoints    int64
	TotalResponses int64
	// RecipientEmail receives the digest by mail when SMTP is configured.
	RecipientEmail string
}

// DigestEntry is one leaderboard row inside a Digest, best first.
type DigestEntry struct {
	CuratorName       string
	FinalScore        int64
	TierLabel         string
	TierColor         string
	ResponseCount     int64
	AvgLatencySeconds *float64
}

// Dispatcher fans notifications out to the configured sinks. Alerts go to
// the curator channel webhook; digests go to the admin webhook and, when
// SMTP is configured, by e-mail. Errors from multiple sinks are joined.
type Dispatcher struct {
	webhook *WebhookNotifier
	admin   *WebhookNotifier
	email   *EmailNotifier
	logger  logging.Logger
}

type DispatcherConfig struct {
	WebhookNotifier *WebhookNotifier
	AdminNotifier   *WebhookNotifier
	EmailNotifier   *EmailNotifier
	Logger          logging.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		webhook: cfg.WebhookNotifier,
		admin:   cfg.AdminNotifier,
		email:   cfg.EmailNotifier,
		logger:  cfg.Logger,
	}
}

// Alert delivers an escalation notification to the curator channel.
func (d *Dispatcher) Alert(ctx context.Context, alert Alert) error {
	if !d.webhook.IsConfigured() {
		d.logger.WithFields(logging.Fields{
			"server_id":  alert.ServerID,
			"channel_id": alert.ChannelID,
		}).Warn("Escalation alert raised but webhook notifier missing")
		return nil
	}
	return d.webhook.SendAlert(ctx, alert)
}

// Digest delivers the period summary to every configured admin sink.
func (d *Dispatcher) Digest(ctx context.Context, digest Digest) error {
	var errs []error
	delivered := false

	if d.admin.IsConfigured() {
		delivered = true
		if err := d.admin.SendDigest(ctx, digest); err != nil {
			errs = append(errs, err)
		}
	}

	if d.email.IsConfigured() && digest.RecipientEmail != "" {
		delivered = true
		if err := d.email.Notify(ctx, digest); err != nil {
			errs = append(errs, err)
		}
	}

	if !delivered {
		d.logger.WithField("server_id", digest.ServerID).Warn("Period digest produced but no admin sink configured")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
