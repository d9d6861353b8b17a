package command

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/model"
)

// Replier はコマンドの結果を送信元へ返すインターフェース。
type Replier interface {
	Send(ctx context.Context, roomID int64, subChannelID int, text string, rich bool) error
}

// Request はコマンド1回分の入力。
type Request struct {
	Msg  *model.InboundMessage
	Role access.Role
	Cmd  Parsed
}

// Handler はコマンドを実行し、返信文（HTML）を返す。
type Handler func(ctx context.Context, req Request) (string, error)

// Router はコマンド名からHandlerを引いて実行する。
// 権限の確認は呼び出し側で済んでいることを前提とする。
type Router struct {
	handlers map[string]Handler
	replier  Replier
	logger   *slog.Logger
}

// NewRouter はRouterの新しいインスタンスを生成する。
func NewRouter(replier Replier, logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		replier:  replier,
		logger:   logger,
	}
}

// Handle はコマンドを登録する。同名の登録は上書きする。
func (r *Router) Handle(name string, h Handler) {
	r.handlers[name] = h
}

// Recognizes はコマンドが登録されているかどうかを返す。
func (r *Router) Recognizes(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names は登録済みのコマンド名を昇順で返す。
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch はコマンドを実行し、結果をメッセージと同じトピックへ返信する。
func (r *Router) Dispatch(ctx context.Context, msg *model.InboundMessage, role access.Role, cmd Parsed) error {
	h, ok := r.handlers[cmd.Name]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmd.Name)
	}

	reply, err := h(ctx, Request{Msg: msg, Role: role, Cmd: cmd})
	if err != nil {
		return fmt.Errorf("command %s: %w", cmd.Name, err)
	}
	if reply == "" {
		return nil
	}

	if err := r.replier.Send(ctx, msg.RoomID, msg.SubChannelID, reply, true); err != nil {
		return fmt.Errorf("reply to %s: %w", cmd.Name, err)
	}

	r.logger.Info("コマンドを実行しました",
		slog.String("command", cmd.Name),
		slog.Int64("user_id", msg.SenderID),
		slog.String("role", role.String()),
	)
	return nil
}
