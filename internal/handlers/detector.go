package handlers

import (
	"regexp"
	"strings"

	"lookout/internal/config"
)

var (
	roleMentionPattern = regexp.MustCompile(`<@&(\d+)>`)
	userMentionPattern = regexp.MustCompile(`<@!?(\d+)>`)
)

// Detection is the outcome of classifying a single message.
type Detection struct {
	KeywordHit     bool
	MentionedRoles []string
	MentionedUsers []string
}

// HelpRequestFor reports whether the detection qualifies as a help request
// for a server whose curator role is curatorRoleID: either a keyword fired
// or the curator role itself was mentioned.
func (d Detection) HelpRequestFor(curatorRoleID string) bool {
	if d.KeywordHit {
		return true
	}
	if curatorRoleID == "" {
		return false
	}
	for _, role := range d.MentionedRoles {
		if role == curatorRoleID {
			return true
		}
	}
	return false
}

// MentionsRole reports whether the given role appears in the mention targets.
func (d Detection) MentionsRole(roleID string) bool {
	for _, role := range d.MentionedRoles {
		if role == roleID {
			return true
		}
	}
	return false
}

// Detector classifies message text against a configured keyword set.
// Matching is case-insensitive substring search, so a keyword like
// "помощ" covers "помощь", "помощи" and "ПОМОЩЬ!" alike.
type Detector struct {
	keywords []string
}

func NewDetector(cfg config.DetectorConfig) *Detector {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, keyword := range cfg.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return &Detector{keywords: keywords}
}

// Detect scans content for help keywords and extracts explicit role and
// user mention targets. It is pure: empty input yields a zero Detection.
func (d *Detector) Detect(content string) Detection {
	detection := Detection{}
	if content == "" {
		return detection
	}

	lowered := strings.ToLower(content)
	for _, keyword := range d.keywords {
		if strings.Contains(lowered, keyword) {
			detection.KeywordHit = true
			break
		}
	}

	for _, match := range roleMentionPattern.FindAllStringSubmatch(content, -1) {
		detection.MentionedRoles = append(detection.MentionedRoles, match[1])
	}
	for _, match := range userMentionPattern.FindAllStringSubmatch(content, -1) {
		detection.MentionedUsers = append(detection.MentionedUsers, match[1])
	}
	return detection
}
