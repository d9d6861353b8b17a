// Package command はチャットコマンドの解析と実行を提供する。
package command

import "strings"

// Marker はコマンドの先頭文字。
const Marker = "/"

// Parsed は解析済みのコマンド。
type Parsed struct {
	Name      string   // "/" と "@bot" を除いたコマンド名。大文字小文字はそのまま
	Addressee string   // "@" 以降の宛先ボット名。宛先なしの場合は空
	Args      []string // 空白区切りの引数
	ArgText   string   // コマンド名より後ろの文字列（前後の空白を除去）
}

// Parse はテキストをコマンドとして解析する。"/" で始まらない場合はfalseを返す。
// "/show-my-id@roomguard_bot" のような宛先付きの形式も受け付ける。
func Parse(text string) (Parsed, bool) {
	if !strings.HasPrefix(text, Marker) {
		return Parsed{}, false
	}

	head, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i:] + " " + rest
		head = head[:i]
	}

	name, addressee, _ := strings.Cut(strings.TrimPrefix(head, Marker), "@")

	rest = strings.TrimSpace(rest)
	return Parsed{
		Name:      name,
		Addressee: addressee,
		Args:      strings.Fields(rest),
		ArgText:   rest,
	}, true
}

// AddressedTo はコマンドがbotUsername宛てかどうかを返す。
// 宛先なし、またはbotUsernameが空の場合は常にtrue。
func (p Parsed) AddressedTo(botUsername string) bool {
	return p.Addressee == "" || botUsername == "" || strings.EqualFold(p.Addressee, botUsername)
}
