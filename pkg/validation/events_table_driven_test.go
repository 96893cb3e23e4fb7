package validation

import (
	"testing"
)

func TestValidateEnvelope_TableDriven(t *testing.T) {
	cases := []struct {
		name string
		env  ChatEnvelope
		ok   bool
	}{
		{"message ok", baseEnvelope("message"), true},
		{"reply ok", func() ChatEnvelope {
			e := baseEnvelope("reply")
			e.TargetMessageID = "msg-0"
			e.TargetAuthorID = "user-0"
			return e
		}(), true},
		{"reaction ok", func() ChatEnvelope {
			e := baseEnvelope("reaction")
			e.MessageID = ""
			e.Content = ""
			e.Emoji = "✅"
			e.TargetMessageID = "msg-0"
			return e
		}(), true},
		{"unknown kind", func() ChatEnvelope {
			e := baseEnvelope("edit")
			return e
		}(), false},
		{"missing server_id", func() ChatEnvelope {
			e := baseEnvelope("message")
			e.ServerID = ""
			return e
		}(), false},
		{"missing author_id", func() ChatEnvelope {
			e := baseEnvelope("message")
			e.AuthorID = ""
			return e
		}(), false},
		{"message missing message_id", func() ChatEnvelope {
			e := baseEnvelope("message")
			e.MessageID = ""
			return e
		}(), false},
		{"reply missing target", baseEnvelope("reply"), false},
		{"reaction missing emoji", func() ChatEnvelope {
			e := baseEnvelope("reaction")
			e.TargetMessageID = "msg-0"
			return e
		}(), false},
		{"reaction missing target", func() ChatEnvelope {
			e := baseEnvelope("reaction")
			e.Emoji = "👍"
			return e
		}(), false},
		{"missing timestamp", func() ChatEnvelope {
			e := baseEnvelope("message")
			e.Timestamp = ""
			return e
		}(), false},
	}
	v := NewEventValidator()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidateEnvelope(&tc.env)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
