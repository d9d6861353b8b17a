package telegram

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText はHTML形式の通知文からタグを除去し、実体参照を戻した本文を返す。
// ゲートウェイがHTMLを解釈できなかった場合の再送に使う。
func PlainText(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}
