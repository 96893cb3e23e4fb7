package handlers

import (
	"reflect"
	"testing"

	"lookout/internal/config"
)

func newTestDetector() *Detector {
	return NewDetector(config.DetectorConfig{Keywords: config.DefaultKeywords})
}

func TestDetectorKeywords(t *testing.T) {
	detector := newTestDetector()

	tests := []struct {
		name    string
		content string
		hit     bool
	}{
		{"cyrillic keyword", "нужна помощь с заданием", true},
		{"uppercase cyrillic", "КУРАТОР, подойдите пожалуйста", true},
		{"latin keyword", "can any curator help here?", true},
		{"keyword inside word", "позовите модератора!", true},
		{"unrelated text", "всем привет, как дела?", false},
		{"empty content", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detector.Detect(tt.content)
			if got.KeywordHit != tt.hit {
				t.Errorf("Detect(%q).KeywordHit = %v, want %v", tt.content, got.KeywordHit, tt.hit)
			}
		})
	}
}

func TestDetectorMentionExtraction(t *testing.T) {
	detector := newTestDetector()

	got := detector.Detect("<@&111222333> и <@444555666>, гляньте <@!777888999>")
	if !reflect.DeepEqual(got.MentionedRoles, []string{"111222333"}) {
		t.Errorf("MentionedRoles = %v, want [111222333]", got.MentionedRoles)
	}
	if !reflect.DeepEqual(got.MentionedUsers, []string{"444555666", "777888999"}) {
		t.Errorf("MentionedUsers = %v, want [444555666 777888999]", got.MentionedUsers)
	}
}

func TestDetectionHelpRequestFor(t *testing.T) {
	tests := []struct {
		name      string
		detection Detection
		roleID    string
		want      bool
	}{
		{"keyword hit", Detection{KeywordHit: true}, "role-1", true},
		{"curator role mentioned", Detection{MentionedRoles: []string{"role-1"}}, "role-1", true},
		{"other role mentioned", Detection{MentionedRoles: []string{"role-2"}}, "role-1", false},
		{"user mention alone does not trigger", Detection{MentionedUsers: []string{"42"}}, "role-1", false},
		{"no curator role configured", Detection{MentionedRoles: []string{"role-1"}}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.detection.HelpRequestFor(tt.roleID); got != tt.want {
				t.Errorf("HelpRequestFor(%q) = %v, want %v", tt.roleID, got, tt.want)
			}
		})
	}
}

func TestDetectorCustomKeywords(t *testing.T) {
	detector := NewDetector(config.DetectorConfig{Keywords: []string{" SOS ", ""}})

	if got := detector.Detect("sos, у нас проблема"); !got.KeywordHit {
		t.Error("expected trimmed lowercase keyword to match")
	}
	if got := detector.Detect("нужна помощь"); got.KeywordHit {
		t.Error("default keywords must not apply when a custom set is given")
	}
}
