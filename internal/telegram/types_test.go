package telegram

import (
	"encoding/json"
	"testing"
)

func decodeUpdate(t *testing.T, raw string) *Update {
	t.Helper()
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &u
}

func TestInbound_GeneralTopicHasNoThread(t *testing.T) {
	u := decodeUpdate(t, `{"update_id":1,"message":{"message_id":2,"message_thread_id":55,
		"from":{"id":9,"is_bot":false,"first_name":"A","last_name":"B"},"chat":{"id":-100,"type":"supergroup"},"text":"x"}}`)

	in := u.Inbound()
	if in.SubChannelID != 0 {
		t.Errorf("SubChannelID = %d, want 0 for non-topic reply thread", in.SubChannelID)
	}
	if in.SenderDisplayName != "A B" {
		t.Errorf("SenderDisplayName = %q", in.SenderDisplayName)
	}
}

func TestInbound_CaptionAndMedia(t *testing.T) {
	u := decodeUpdate(t, `{"update_id":1,"message":{"message_id":2,
		"from":{"id":9,"is_bot":false,"first_name":"","username":"anon"},"chat":{"id":-100,"type":"supergroup"},
		"caption":"look","photo":[{"file_id":"x"}]}}`)

	in := u.Inbound()
	if in.Text != "look" {
		t.Errorf("Text = %q, want caption", in.Text)
	}
	if !in.HasMedia {
		t.Error("HasMedia = false, want true")
	}
	if in.SenderDisplayName != "anon" {
		t.Errorf("SenderDisplayName = %q, want username fallback", in.SenderDisplayName)
	}
}

func TestInbound_MissingSenderAndBot(t *testing.T) {
	anon := decodeUpdate(t, `{"update_id":1,"message":{"message_id":2,"chat":{"id":-100,"type":"supergroup"},"text":"x"}}`)
	if in := anon.Inbound(); in.SenderID != 0 || in.HasMedia {
		t.Errorf("Inbound() = %+v, want sender 0", in)
	}

	bot := decodeUpdate(t, `{"update_id":1,"message":{"message_id":2,"from":{"id":5,"is_bot":true,"first_name":"b"},"chat":{"id":-100,"type":"supergroup"},"text":"x"}}`)
	if in := bot.Inbound(); !in.IsBot {
		t.Error("IsBot = false, want true")
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<a href="tg://user?id=1">Alice</a> さん`, "Alice さん"},
		{"ID: <code>42</code>", "ID: 42"},
		{"a &amp; b &lt;c&gt;", "a & b <c>"},
		{"line1<br>line2", "line1\nline2"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
