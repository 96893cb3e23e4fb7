package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"lookout/pkg/config"
	"lookout/pkg/models"
)

// Rating period granularities.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// DefaultKeywords are the help-request trigger words matched case-insensitively
// as substrings. Cyrillic and Latin forms are both listed because communities
// mix them freely.
var DefaultKeywords = []string{
	"куратор", "curator",
	"помощь", "help",
	"вопрос", "question",
	"админ", "admin",
	"поддержка", "support",
	"модератор", "moderator",
}

// DefaultRatingTiers maps final scores to labels, highest threshold first.
// The zero-threshold tier keeps the mapping exhaustive.
var DefaultRatingTiers = []models.RatingTier{
	{MinScore: 50, Label: "Великолепно", Color: "#22c55e"},
	{MinScore: 35, Label: "Хорошо", Color: "#3b82f6"},
	{MinScore: 20, Label: "Нормально", Color: "#f59e0b"},
	{MinScore: 10, Label: "Плохо", Color: "#ef4444"},
	{MinScore: 0, Label: "Ужасно", Color: "#991b1b"},
}

// Config stores environment configuration for Lookout.
type Config struct {
	Port string

	DatabaseURL        string
	ClickHouseHosts    []string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	KafkaBrokers       []string
	KafkaGroupID       string
	KafkaClusterID     string
	KafkaClientID      string
	ChatEventsTopic    string
	TrackerEventsTopic string
	ChatEventsDLQTopic string

	WebhookURL      string
	AdminWebhookURL string
	AdminEmail      string
	SMTPHost        string
	SMTPPort        string
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string

	RedisURL string

	Detector   DetectorConfig
	Correlator CorrelatorConfig
	Escalation EscalationConfig
	Rating     RatingConfig

	RetentionDays int
}

// DetectorConfig drives keyword detection. Keywords are stored lowercased.
type DetectorConfig struct {
	Keywords []string
}

// CorrelatorConfig drives response correlation.
type CorrelatorConfig struct {
	// ReactionCloses controls whether a curator reaction on the tracked
	// mention message counts as a qualifying response.
	ReactionCloses bool
}

// EscalationTier is one reminder boundary. A record older than After that
// has not advanced past this tier triggers exactly one notification.
type EscalationTier struct {
	After time.Duration
	Label string
}

// EscalationConfig drives the periodic sweep.
type EscalationConfig struct {
	// Tiers are sorted ascending by After.
	Tiers         []EscalationTier
	SweepInterval time.Duration
	// AbandonAfter closes records nobody answered. Zero disables.
	AbandonAfter time.Duration
}

// ActivityWeights are the per-kind points credited at write time.
type ActivityWeights struct {
	Message          int32
	Reaction         int32
	Reply            int32
	TaskVerification int32
}

// PointsFor resolves the configured weight for an activity kind.
func (w ActivityWeights) PointsFor(kind models.ActivityKind) int32 {
	switch kind {
	case models.ActivityMessage:
		return w.Message
	case models.ActivityReaction:
		return w.Reaction
	case models.ActivityReply:
		return w.Reply
	case models.ActivityTaskVerification:
		return w.TaskVerification
	default:
		return 0
	}
}

// RatingConfig drives the periodic rating recompute.
type RatingConfig struct {
	// Period is one of day, week, month. Week runs Monday to Monday.
	Period            string
	RecomputeInterval time.Duration

	Weights ActivityWeights

	// Step curve for the response modifier, evaluated per answered record.
	FastResponseSeconds int64
	SlowResponseSeconds int64
	FastResponseBonus   int64
	SlowResponsePenalty int64

	// Tiers are sorted by MinScore descending; first match wins.
	Tiers []models.RatingTier
}

// ModifierFor maps one response latency onto the step curve.
func (r RatingConfig) ModifierFor(latencySeconds int64) int64 {
	switch {
	case latencySeconds <= r.FastResponseSeconds:
		return r.FastResponseBonus
	case latencySeconds <= r.SlowResponseSeconds:
		return 0
	default:
		return r.SlowResponsePenalty
	}
}

// TierFor maps a final score onto the highest tier whose threshold it meets.
// Scores below every threshold land on the last tier.
func (r RatingConfig) TierFor(score int64) models.RatingTier {
	for _, tier := range r.Tiers {
		if score >= tier.MinScore {
			return tier
		}
	}
	return r.Tiers[len(r.Tiers)-1]
}

// PeriodBounds returns the [start, end) window containing now, in UTC.
func (r RatingConfig) PeriodBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch r.Period {
	case PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		// ISO week: Monday 00:00 UTC
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	}
}

// LoadConfig loads the Lookout configuration from environment variables.
// DATABASE_URL, CLICKHOUSE_HOSTS and KAFKA_BROKERS are required; everything
// else has defaults taken from the reference deployment.
func LoadConfig() Config {
	return Config{
		Port: config.GetEnv("PORT", "18090"),

		DatabaseURL:        config.RequireEnv("DATABASE_URL"),
		ClickHouseHosts:    splitCSV(config.RequireEnv("CLICKHOUSE_HOSTS")),
		ClickHouseDatabase: config.GetEnv("CLICKHOUSE_DATABASE", "lookout"),
		ClickHouseUser:     config.GetEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: config.GetEnv("CLICKHOUSE_PASSWORD", ""),

		KafkaBrokers:       splitCSV(config.RequireEnv("KAFKA_BROKERS")),
		KafkaGroupID:       config.GetEnv("KAFKA_GROUP_ID", "lookout"),
		KafkaClusterID:     config.GetEnv("KAFKA_CLUSTER_ID", "local"),
		KafkaClientID:      config.GetEnv("KAFKA_CLIENT_ID", "lookout"),
		ChatEventsTopic:    config.GetEnv("CHAT_EVENTS_TOPIC", "chat_events"),
		TrackerEventsTopic: config.GetEnv("TRACKER_EVENTS_TOPIC", "tracker_events"),
		ChatEventsDLQTopic: config.GetEnv("CHAT_EVENTS_DLQ_TOPIC", "chat_events_dlq"),

		WebhookURL:      config.GetEnv("WEBHOOK_URL", ""),
		AdminWebhookURL: config.GetEnv("ADMIN_WEBHOOK_URL", ""),
		AdminEmail:      config.GetEnv("ADMIN_EMAIL", ""),
		SMTPHost:        config.GetEnv("SMTP_HOST", ""),
		SMTPPort:        config.GetEnv("SMTP_PORT", "587"),
		SMTPUser:        config.GetEnv("SMTP_USER", ""),
		SMTPPassword:    config.GetEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        config.GetEnv("SMTP_FROM", ""),

		RedisURL: config.GetEnv("REDIS_URL", ""),

		Detector: DetectorConfig{
			Keywords: loadKeywords(),
		},
		Correlator: CorrelatorConfig{
			ReactionCloses: config.GetEnvBool("REACTION_CLOSES", true),
		},
		Escalation: EscalationConfig{
			Tiers:         ParseEscalationTiers(config.GetEnv("ESCALATION_TIERS", "600")),
			SweepInterval: time.Duration(config.GetEnvInt("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
			AbandonAfter:  time.Duration(config.GetEnvInt("ABANDON_AFTER_HOURS", 24)) * time.Hour,
		},
		Rating: RatingConfig{
			Period:            loadPeriod(),
			RecomputeInterval: time.Duration(config.GetEnvInt("RATING_INTERVAL_MINUTES", 60)) * time.Minute,
			Weights: ActivityWeights{
				Message:          int32(config.GetEnvInt("WEIGHT_MESSAGE", 3)),
				Reaction:         int32(config.GetEnvInt("WEIGHT_REACTION", 1)),
				Reply:            int32(config.GetEnvInt("WEIGHT_REPLY", 2)),
				TaskVerification: int32(config.GetEnvInt("WEIGHT_TASK", 5)),
			},
			FastResponseSeconds: int64(config.GetEnvInt("FAST_RESPONSE_SECONDS", 60)),
			SlowResponseSeconds: int64(config.GetEnvInt("SLOW_RESPONSE_SECONDS", 300)),
			FastResponseBonus:   int64(config.GetEnvInt("FAST_RESPONSE_BONUS", 2)),
			SlowResponsePenalty: int64(config.GetEnvInt("SLOW_RESPONSE_PENALTY", -1)),
			Tiers:               ParseRatingTiers(config.GetEnv("RATING_TIERS", "")),
		},

		RetentionDays: config.GetEnvInt("RETENTION_DAYS", 180),
	}
}

func loadKeywords() []string {
	raw := config.GetEnv("HELP_KEYWORDS", "")
	if strings.TrimSpace(raw) == "" {
		out := make([]string, len(DefaultKeywords))
		copy(out, DefaultKeywords)
		return out
	}
	var keywords []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			keywords = append(keywords, part)
		}
	}
	if len(keywords) == 0 {
		out := make([]string, len(DefaultKeywords))
		copy(out, DefaultKeywords)
		return out
	}
	return keywords
}

func loadPeriod() string {
	period := strings.ToLower(config.GetEnv("RATING_PERIOD", PeriodWeek))
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return period
	default:
		return PeriodWeek
	}
}

// ParseEscalationTiers parses a CSV of boundary seconds ("600,1800,3600")
// into ascending tiers. Non-positive and unparseable entries are dropped;
// an empty result falls back to a single 10-minute tier.
func ParseEscalationTiers(csv string) []EscalationTier {
	var tiers []EscalationTier
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		secs, err := strconv.Atoi(part)
		if err != nil || secs <= 0 {
			continue
		}
		tiers = append(tiers, EscalationTier{After: time.Duration(secs) * time.Second})
	}
	if len(tiers) == 0 {
		tiers = []EscalationTier{{After: 600 * time.Second}}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].After < tiers[j].After })
	for i := range tiers {
		tiers[i].Label = "tier-" + strconv.Itoa(i+1)
	}
	return tiers
}

// ParseRatingTiers parses "min:label:color" triples ("50:Великолепно:#22c55e,...")
// into tiers sorted by threshold descending. An empty or fully invalid value
// yields the default table.
func ParseRatingTiers(csv string) []models.RatingTier {
	var tiers []models.RatingTier
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 3)
		if len(fields) != 3 {
			continue
		}
		threshold, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil || threshold < 0 {
			continue
		}
		label := strings.TrimSpace(fields[1])
		color := strings.TrimSpace(fields[2])
		if label == "" {
			continue
		}
		tiers = append(tiers, models.RatingTier{MinScore: threshold, Label: label, Color: color})
	}
	if len(tiers) == 0 {
		out := make([]models.RatingTier, len(DefaultRatingTiers))
		copy(out, DefaultRatingTiers)
		return out
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinScore > tiers[j].MinScore })
	return tiers
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
