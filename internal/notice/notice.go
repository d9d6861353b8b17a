// Package notice はチャットに送信する通知文をテンプレートから生成する。
// 既定のテンプレートを組み込みで持ち、YAMLファイルで個別に上書きできる。
package notice

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

// Kind は通知の種類。YAMLのキーとしても使う。
type Kind string

const (
	KindWarning          Kind = "warning"
	KindFinalWarning     Kind = "final_warning"
	KindEvictionReport   Kind = "eviction_report"
	KindCommandDenied    Kind = "command_denied"
	KindAdminCommandDeny Kind = "admin_command_denied"
	KindMessageDenied    Kind = "message_denied"
	KindShowMyID         Kind = "show_my_id"
	KindAccessState      Kind = "access_state"
	KindPendingList      Kind = "pending_list"
	KindUsage            Kind = "usage"
)

var defaultTemplates = map[Kind]string{
	KindWarning: `{{.Mention}} さん、このグループで発言するにはメンバー登録が必要です。` +
		`管理者に登録を依頼してください。{{minutes .GracePeriod}}分以内に登録されない場合、グループから退室となります。`,
	KindFinalWarning: `{{.Mention}} さん、登録の猶予期間（{{minutes .GracePeriod}}分）が過ぎました。` +
		`まもなくグループから退室となります。`,
	KindEvictionReport: `未登録ユーザーを退室させました。` + "\n" +
		`名前: {{.DisplayName}}` + "\n" +
		`ID: <code>{{.UserID}}</code>` + "\n" +
		`日時: {{.Time.Format "2006-01-02 15:04:05 MST"}}`,
	KindCommandDenied: `{{.Mention}} さん、/{{.Command}} はこのトピック（{{.SubChannel}}）では使えません。` + "\n" +
		`使えるコマンド: {{join .AllowedCommands ", "}}` + "\n" +
		`使えるトピック: {{join .AllowedSubChannels ", "}}`,
	KindAdminCommandDeny: `/{{.Command}} はこのトピック（{{.SubChannel}}）では実行できません。` + "\n" +
		`実行できるトピック: {{join .AllowedSubChannels ", "}}`,
	KindMessageDenied: `{{.Mention}} さん、このトピック（{{.SubChannel}}）には投稿できません。` + "\n" +
		`投稿できるトピック: {{join .AllowedSubChannels ", "}}`,
	KindShowMyID: `あなたのユーザーID: <code>{{.UserID}}</code>`,
	KindAccessState: `ユーザーID: <code>{{.UserID}}</code>` + "\n" +
		`ロール: {{.Role}}` + "\n" +
		`{{if .RegisteredAt.IsZero}}登録: なし{{else}}登録: {{.DisplayName}}（{{.RegisteredAt.Format "2006-01-02 15:04"}}）{{end}}` + "\n" +
		`{{if .LastWarningAt.IsZero}}最終警告: なし{{else}}最終警告: {{.LastWarningAt.Format "2006-01-02 15:04:05"}}{{end}}` + "\n" +
		`退室予約: {{if .KickArmed}}あり{{else}}なし{{end}}`,
	KindPendingList: `{{if .PendingIDs}}退室予約中のユーザー:{{range .PendingIDs}}` + "\n" + `- <code>{{.}}</code>{{end}}{{else}}退室予約中のユーザーはいません。{{end}}`,
	KindUsage:       `使い方: {{.Text}}`,
}

// Data はテンプレートに渡す値。文字列フィールドはRender時にHTMLエスケープされる。
// Mentionは生成済みのHTMLとして扱う。
type Data struct {
	UserID             int64
	DisplayName        string
	Command            string
	SubChannel         string
	AllowedCommands    []string
	AllowedSubChannels []string
	GracePeriod        time.Duration
	Time               time.Time
	Role               string
	RegisteredAt       time.Time
	LastWarningAt      time.Time
	KickArmed          bool
	PendingIDs         []int64
	Text               string

	Mention string
}

// Renderer は通知テンプレートの集合。
type Renderer struct {
	templates map[Kind]*template.Template
	policy    *bluemonday.Policy
}

var funcs = template.FuncMap{
	"join":    strings.Join,
	"minutes": func(d time.Duration) int { return int(d / time.Minute) },
}

// New は既定テンプレートにoverridesを重ねたRendererを生成する。
func New(overrides map[Kind]string) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[Kind]*template.Template, len(defaultTemplates)),
		policy:    bluemonday.StrictPolicy(),
	}
	for kind, text := range defaultTemplates {
		if o, ok := overrides[kind]; ok && o != "" {
			text = o
		}
		tmpl, err := template.New(string(kind)).Funcs(funcs).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		r.templates[kind] = tmpl
	}
	for kind := range overrides {
		if _, ok := defaultTemplates[kind]; !ok {
			return nil, fmt.Errorf("unknown notice kind: %s", kind)
		}
	}
	return r, nil
}

// Load はYAMLファイルから上書きテンプレートを読み込んでRendererを生成する。
// pathが空の場合は既定テンプレートのみを使う。
func Load(path string) (*Renderer, error) {
	if path == "" {
		return New(nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read notices file: %w", err)
	}
	var overrides map[Kind]string
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse notices file: %w", err)
	}
	return New(overrides)
}

// Render は通知文を生成する。表示名などユーザー由来の文字列は
// タグを除去したうえでHTMLエスケープする。
func (r *Renderer) Render(kind Kind, d Data) (string, error) {
	tmpl, ok := r.templates[kind]
	if !ok {
		return "", fmt.Errorf("unknown notice kind: %s", kind)
	}

	d.DisplayName = r.sanitize(d.DisplayName)
	d.Command = r.sanitize(d.Command)
	d.Text = html.EscapeString(d.Text)
	if d.Mention == "" && d.UserID != 0 {
		d.Mention = r.Mention(d.UserID, d.DisplayName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// Mention はユーザーへのメンションリンクを生成する。nameはエスケープ済みであること。
func (r *Renderer) Mention(userID int64, name string) string {
	if name == "" {
		name = fmt.Sprintf("%d", userID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, name)
}

func (r *Renderer) sanitize(s string) string {
	// StrictPolicyはタグを除去し、残った本文をエスケープする
	return strings.TrimSpace(r.policy.Sanitize(s))
}
