package notify

import (
	"lookout/pkg/email"
)

// Config wires the notification sinks. Empty fields leave the corresponding
// sink unconfigured; the Dispatcher logs and skips instead of failing.
type Config struct {
	// WebhookURL receives escalation alerts.
	WebhookURL string
	// AdminWebhookURL receives period digests.
	AdminWebhookURL string
	// AdminEmail receives digest mail when SMTP is configured.
	AdminEmail string
	SMTP       email.Config
}
