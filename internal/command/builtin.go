package command

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/member"
	"github.com/hitoshi/roomguard/internal/notice"
)

// Members は管理コマンドが利用する登録簿の操作。
type Members interface {
	RegisterUser(ctx context.Context, actingID, targetID int64, displayName string) member.Result
	RemoveUser(ctx context.Context, actingID, targetID int64) member.Result
	AccessState(ctx context.Context, userID int64) (*member.AccessState, error)
	PendingEvictions() []int64
}

// 組み込みコマンド名
const (
	NameShowMyID      = "show-my-id"
	NameCheckVariable = "check-variable"
	NameRegister      = "register"
	NameRemove        = "remove"
	NamePending       = "pending"
)

// RegisterBuiltins は組み込みコマンドをRouterに登録する。
func RegisterBuiltins(r *Router, members Members, notices *notice.Renderer) {
	b := &builtins{members: members, notices: notices}
	r.Handle(NameShowMyID, b.showMyID)
	r.Handle(NameCheckVariable, b.checkVariable)
	r.Handle(NameRegister, b.register)
	r.Handle(NameRemove, b.remove)
	r.Handle(NamePending, b.pending)
}

type builtins struct {
	members Members
	notices *notice.Renderer
}

func (b *builtins) showMyID(ctx context.Context, req Request) (string, error) {
	return b.notices.Render(notice.KindShowMyID, notice.Data{UserID: req.Msg.SenderID})
}

// checkVariable は呼び出し元のアクセス状態を返す。
// 管理者は引数でユーザーIDを指定して他のユーザーの状態を確認できる。
func (b *builtins) checkVariable(ctx context.Context, req Request) (string, error) {
	target := req.Msg.SenderID
	if req.Role == access.RoleAdmin && len(req.Cmd.Args) > 0 {
		id, err := strconv.ParseInt(req.Cmd.Args[0], 10, 64)
		if err != nil {
			return b.usage("/check-variable [ユーザーID]")
		}
		target = id
	}

	st, err := b.members.AccessState(ctx, target)
	if err != nil {
		return "", err
	}

	data := notice.Data{
		UserID:        st.UserID,
		Role:          st.Role.String(),
		LastWarningAt: st.Warning.LastWarningAt,
		KickArmed:     st.Warning.KickArmed,
	}
	if st.Member != nil {
		data.DisplayName = st.Member.DisplayName
		data.RegisteredAt = st.Member.RegisteredAt
	}
	return b.notices.Render(notice.KindAccessState, data)
}

func (b *builtins) register(ctx context.Context, req Request) (string, error) {
	idText, name, _ := strings.Cut(req.Cmd.ArgText, " ")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || strings.TrimSpace(name) == "" {
		return b.usage("/register <ユーザーID> <表示名>")
	}
	res := b.members.RegisterUser(ctx, req.Msg.SenderID, id, name)
	return html.EscapeString(res.Message), nil
}

func (b *builtins) remove(ctx context.Context, req Request) (string, error) {
	if len(req.Cmd.Args) != 1 {
		return b.usage("/remove <ユーザーID>")
	}
	id, err := strconv.ParseInt(req.Cmd.Args[0], 10, 64)
	if err != nil {
		return b.usage("/remove <ユーザーID>")
	}
	res := b.members.RemoveUser(ctx, req.Msg.SenderID, id)
	return html.EscapeString(res.Message), nil
}

func (b *builtins) pending(ctx context.Context, req Request) (string, error) {
	return b.notices.Render(notice.KindPendingList, notice.Data{PendingIDs: b.members.PendingEvictions()})
}

func (b *builtins) usage(text string) (string, error) {
	return b.notices.Render(notice.KindUsage, notice.Data{Text: text})
}
