package notify

import (
	"testing"
	"time"
)

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"zero", 0, "0 сек"},
		{"seconds", 45 * time.Second, "45 сек"},
		{"last second bucket", 59 * time.Second, "59 сек"},
		{"one minute", 60 * time.Second, "1 минута"},
		{"few minutes", 2 * time.Minute, "2 минуты"},
		{"four minutes", 4 * time.Minute, "4 минуты"},
		{"five minutes", 5 * time.Minute, "5 минут"},
		{"ten minutes", 600 * time.Second, "10 минут"},
		{"fifty nine minutes", 59 * time.Minute, "59 минут"},
		{"one hour", time.Hour, "1 час"},
		{"few hours", 2 * time.Hour, "2 часа"},
		{"five hours", 5 * time.Hour, "5 часов"},
		{"one day", 24 * time.Hour, "1 день"},
		{"few days", 48 * time.Hour, "2 дня"},
		{"many days", 120 * time.Hour, "5 дней"},
		{"negative clamps to zero", -10 * time.Second, "0 сек"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HumanDuration(tt.d); got != tt.want {
				t.Errorf("HumanDuration(%v) = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}
