package model

// InboundMessage はゲートウェイから受信した1件のメッセージ。
type InboundMessage struct {
	MessageID         int
	SenderID          int64 // 送信者不明の場合は0
	SenderDisplayName string
	IsBot             bool
	RoomID            int64
	SubChannelID      int // フォーラムのトピックID。トピック外は0
	Text              string
	HasMedia          bool
}

// IsCommand はテキストがコマンド（"/"で始まる）かどうかを返す。
func (m *InboundMessage) IsCommand() bool {
	return len(m.Text) > 0 && m.Text[0] == '/'
}
