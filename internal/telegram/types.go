package telegram

import (
	"encoding/json"
	"strings"

	"github.com/hitoshi/roomguard/internal/model"
)

// Update はgetUpdatesで受信する1件のアップデート。message以外の種類は受信しない。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message はBot APIのメッセージのうち、判定に必要なフィールドのみを持つ。
type Message struct {
	MessageID       int    `json:"message_id"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	IsTopicMessage  bool   `json:"is_topic_message,omitempty"`
	From            *User  `json:"from,omitempty"`
	Chat            Chat   `json:"chat"`
	Text            string `json:"text,omitempty"`
	Caption         string `json:"caption,omitempty"`

	// メディアは有無だけを判定する
	Photo     json.RawMessage `json:"photo,omitempty"`
	Document  json.RawMessage `json:"document,omitempty"`
	Video     json.RawMessage `json:"video,omitempty"`
	Audio     json.RawMessage `json:"audio,omitempty"`
	Voice     json.RawMessage `json:"voice,omitempty"`
	Animation json.RawMessage `json:"animation,omitempty"`
	Sticker   json.RawMessage `json:"sticker,omitempty"`
}

// User はメッセージの送信者。
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName は通知で使う表示名を返す。
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Chat はメッセージが投稿されたチャット。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

func (m *Message) hasMedia() bool {
	for _, raw := range []json.RawMessage{m.Photo, m.Document, m.Video, m.Audio, m.Voice, m.Animation, m.Sticker} {
		if len(raw) > 0 && string(raw) != "null" {
			return true
		}
	}
	return false
}

// Inbound はアップデートを判定エンジンへの入力に変換する。
// メッセージを含まない場合はnilを返す。
// フォーラムの「General」トピックの投稿はmessage_thread_idを持たないため、トピックIDは0になる。
func (u *Update) Inbound() *model.InboundMessage {
	m := u.Message
	if m == nil {
		return nil
	}

	in := &model.InboundMessage{
		MessageID: m.MessageID,
		RoomID:    m.Chat.ID,
		Text:      m.Text,
		HasMedia:  m.hasMedia(),
	}
	if in.Text == "" {
		in.Text = m.Caption
	}
	if m.IsTopicMessage {
		in.SubChannelID = m.MessageThreadID
	}
	if m.From != nil {
		in.SenderID = m.From.ID
		in.IsBot = m.From.IsBot
		in.SenderDisplayName = m.From.DisplayName()
	}
	return in
}
