package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"lookout/pkg/email"
	"lookout/pkg/logging"
)

// EmailNotifier mails period digests to the admin address.
type EmailNotifier struct {
	sender     *email.Sender
	smtpConfig email.Config
	logger     logging.Logger
}

type emailDigestData struct {
	ServerName     string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Entries        []DigestEntry
	TotalPoints    int64
	TotalResponses int64
}

func NewEmailNotifier(cfg Config, logger logging.Logger) *EmailNotifier {
	return &EmailNotifier{
		sender:     email.NewSender(cfg.SMTP),
		smtpConfig: cfg.SMTP,
		logger:     logger,
	}
}

// IsConfigured reports whether SMTP delivery is possible.
func (n *EmailNotifier) IsConfigured() bool {
	return n != nil && n.smtpConfig.Host != "" && n.smtpConfig.From != ""
}

func (n *EmailNotifier) Notify(ctx context.Context, digest Digest) error {
	if !n.IsConfigured() {
		n.logger.Warn("Email notifier not configured, skipping period digest email")
		return nil
	}
	if digest.RecipientEmail == "" {
		return fmt.Errorf("digest recipient email missing")
	}

	subject := fmt.Sprintf("Итоги периода кураторов %s — %s",
		digest.PeriodStart.UTC().Format("02.01.2006"),
		digest.PeriodEnd.UTC().Format("02.01.2006"))

	data := emailDigestData{
		ServerName:     digest.ServerName,
		PeriodStart:    digest.PeriodStart,
		PeriodEnd:      digest.PeriodEnd,
		Entries:        digest.Entries,
		TotalPoints:    digest.TotalPoints,
		TotalResponses: digest.TotalResponses,
	}

	body, err := n.renderTemplate(data)
	if err != nil {
		return fmt.Errorf("render period digest email: %w", err)
	}

	if err := n.sender.SendMail(ctx, digest.RecipientEmail, subject, body); err != nil {
		n.logger.WithFields(logging.Fields{
			"error": err.Error(),
			"to":    digest.RecipientEmail,
		}).Error("Failed to send period digest email")
		return err
	}

	n.logger.WithFields(logging.Fields{
		"to":        digest.RecipientEmail,
		"server_id": digest.ServerID,
	}).Info("Period digest email sent")

	return nil
}

func (n *EmailNotifier) renderTemplate(data emailDigestData) (string, error) {
	funcs := template.FuncMap{
		"formatLatency": func(entry DigestEntry) string {
			if entry.AvgLatencySeconds == nil {
				return "-"
			}
			return HumanDuration(time.Duration(*entry.AvgLatencySeconds) * time.Second)
		},
		"hasEntries": func(entries []DigestEntry) bool {
			return len(entries) > 0
		},
		"rank": func(i int) int { return i + 1 },
	}

	tpl, err := template.New("period_digest").Funcs(funcs).Parse(periodDigestTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const periodDigestTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Итоги периода кураторов</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 640px; margin: 0 auto; padding: 24px;">
        <h2 style="color: #2c3e50;">Итоги периода кураторов</h2>

        {{if .ServerName}}
        <p><strong>{{.ServerName}}</strong></p>
        {{end}}

        <p>Период: {{.PeriodStart.Format "02.01.2006"}} — {{.PeriodEnd.Format "02.01.2006"}}</p>

        {{if hasEntries .Entries}}
        <table style="width: 100%; border-collapse: collapse; margin-bottom: 20px;">
            <tr style="background-color: #eef1f5;">
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">#</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Куратор</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Баллы</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Оценка</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Среднее время ответа</th>
            </tr>
            {{range $i, $entry := .Entries}}
            <tr>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">{{rank $i}}</td>
                <td style="padding: 10px; border-bottom: 1px solid #eee;"><strong>{{$entry.CuratorName}}</strong></td>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">{{$entry.FinalScore}}</td>
                <td style="padding: 10px; border-bottom: 1px solid #eee; color: {{$entry.TierColor}};">{{$entry.TierLabel}}</td>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">{{formatLatency $entry}}</td>
            </tr>
            {{end}}
        </table>
        {{end}}

        <div style="background-color: #f8f9fa; padding: 16px; border-radius: 6px; margin: 20px 0;">
            <strong>Итого</strong>
            <p style="margin: 10px 0 0 0;">Баллы активности: {{.TotalPoints}}<br>Ответов на запросы: {{.TotalResponses}}</p>
        </div>
    </div>
</body>
</html>`
