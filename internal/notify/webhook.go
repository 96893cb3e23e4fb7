package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"lookout/pkg/clients"
	"lookout/pkg/logging"
)

const (
	alertColor  = 0xff6b6b
	digestColor = 0x3b82f6

	webhookTimeout    = 30 * time.Second
	maxExcerptLength  = 1000
	maxDigestEntries  = 10
	webhookMaxRetries = 3
)

// WebhookNotifier posts JSON embed payloads to a chat-platform webhook.
// Requests run through a failsafe retry policy and circuit breaker so a
// dead webhook endpoint cannot stall a sweep.
type WebhookNotifier struct {
	name     string
	url      string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	logger   logging.Logger
}

// NewWebhookNotifier creates a notifier for the given webhook URL.
// An empty URL yields an unconfigured notifier that reports IsConfigured false.
func NewWebhookNotifier(name, url string, logger logging.Logger) *WebhookNotifier {
	cb := clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:          name,
		Logger:        logger,
		OnStateChange: clients.CircuitBreakerMetricsCallback(name),
	})

	executor := clients.NewHTTPExecutor(clients.HTTPExecutorConfig{
		MaxRetries:     webhookMaxRetries,
		BaseDelay:      200 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		CircuitBreaker: cb,
	})

	return &WebhookNotifier{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout:   webhookTimeout,
			Transport: clients.DefaultTransport(),
		},
		executor: executor,
		logger:   logger,
	}
}

// IsConfigured reports whether the notifier has a destination.
func (n *WebhookNotifier) IsConfigured() bool {
	return n != nil && n.url != ""
}

type webhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []webhookEmbed `json:"embeds,omitempty"`
}

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// SendAlert posts an unanswered help request notification.
func (n *WebhookNotifier) SendAlert(ctx context.Context, alert Alert) error {
	roleMention := "@here"
	if alert.RoleID != "" {
		roleMention = fmt.Sprintf("<@&%s>", alert.RoleID)
	}

	excerpt := alert.Excerpt
	if excerpt == "" {
		excerpt = "Не указано"
	}
	if runes := []rune(excerpt); len(runes) > maxExcerptLength {
		excerpt = string(runes[:maxExcerptLength])
	}

	elapsed := HumanDuration(alert.Elapsed)

	payload := webhookPayload{
		Content: fmt.Sprintf("%s Требуется внимание кураторов!", roleMention),
		Embeds: []webhookEmbed{{
			Title: "🔔 Неотвеченный запрос помощи",
			Description: fmt.Sprintf("Запрос помощи в **%s** остается без ответа уже **%s**",
				alert.ServerName, elapsed),
			Color:     alertColor,
			Timestamp: alert.MentionedAt.UTC().Format(time.RFC3339),
			Fields: []webhookField{
				{Name: "Сообщение", Value: excerpt},
				{Name: "Автор", Value: alert.RequesterName, Inline: true},
				{Name: "Время ожидания", Value: elapsed, Inline: true},
			},
		}},
	}

	if err := n.send(ctx, payload); err != nil {
		return fmt.Errorf("send escalation alert: %w", err)
	}

	n.logger.WithFields(logging.Fields{
		"server_id":  alert.ServerID,
		"channel_id": alert.ChannelID,
		"tier":       alert.Tier,
		"elapsed":    alert.Elapsed.String(),
	}).Info("Escalation alert sent")

	return nil
}

// SendDigest posts the period summary to the admin channel.
func (n *WebhookNotifier) SendDigest(ctx context.Context, digest Digest) error {
	fields := make([]webhookField, 0, 2)

	entries := digest.Entries
	if len(entries) > maxDigestEntries {
		entries = entries[:maxDigestEntries]
	}

	var board bytes.Buffer
	for i, entry := range entries {
		fmt.Fprintf(&board, "%d. **%s** — %d (%s)\n", i+1, entry.CuratorName, entry.FinalScore, entry.TierLabel)
	}
	if board.Len() > 0 {
		fields = append(fields, webhookField{Name: "Рейтинг кураторов", Value: board.String()})
	}
	fields = append(fields, webhookField{
		Name: "Итого",
		Value: fmt.Sprintf("Баллы активности: %d\nОтветов на запросы: %d",
			digest.TotalPoints, digest.TotalResponses),
	})

	payload := webhookPayload{
		Embeds: []webhookEmbed{{
			Title: "📊 Итоги периода кураторов",
			Description: fmt.Sprintf("**%s** · %s — %s",
				digest.ServerName,
				digest.PeriodStart.UTC().Format("02.01.2006"),
				digest.PeriodEnd.UTC().Format("02.01.2006")),
			Color:     digestColor,
			Timestamp: digest.PeriodEnd.UTC().Format(time.RFC3339),
			Fields:    fields,
		}},
	}

	if err := n.send(ctx, payload); err != nil {
		return fmt.Errorf("send period digest: %w", err)
	}

	n.logger.WithFields(logging.Fields{
		"server_id":    digest.ServerID,
		"period_start": digest.PeriodStart.UTC().Format(time.RFC3339),
		"curators":     len(digest.Entries),
	}).Info("Period digest sent")

	return nil
}

func (n *WebhookNotifier) send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	resp, err := clients.ExecuteHTTP(ctx, n.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		return n.client.Do(req)
	})
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", n.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s returned %d: %s", n.name, resp.StatusCode, string(snippet))
	}

	return nil
}
