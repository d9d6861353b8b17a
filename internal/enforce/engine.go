// Package enforce はメッセージごとのアクセス判定と、未登録ユーザーへの
// 警告・遅延退室処理を提供する。
package enforce

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/command"
	"github.com/hitoshi/roomguard/internal/metrics"
	"github.com/hitoshi/roomguard/internal/model"
	"github.com/hitoshi/roomguard/internal/notice"
	"github.com/hitoshi/roomguard/internal/warning"
	"github.com/hitoshi/roomguard/internal/worker/delayed"
)

// 固定のタイミング。設定では変更できない。
const (
	GracePeriod      = 30 * time.Minute // 警告から退室までの猶予期間
	WarningWindow    = 5 * time.Minute  // 警告の最小間隔
	FinalNoticeDelay = 5 * time.Second  // 最終通知から退室までの待機
	Suspension       = time.Hour        // 退室後に再参加できない期間
)

// Gateway はメッセージングゲートウェイへの送信インターフェース。
type Gateway interface {
	Send(ctx context.Context, roomID int64, subChannelID int, text string, rich bool) error
	DeleteMessage(ctx context.Context, roomID int64, messageID int) error
	Evict(ctx context.Context, roomID, userID int64, suspension time.Duration) error
}

// Dispatcher は許可されたコマンドを実行する。
type Dispatcher interface {
	// Recognizes はコマンドが登録されているかどうかを返す。
	Recognizes(name string) bool
	// Dispatch はコマンドを実行し、結果を送信元へ返信する。
	Dispatch(ctx context.Context, msg *model.InboundMessage, role access.Role, cmd command.Parsed) error
}

// Scheduler は一度きりの遅延実行を登録する。
type Scheduler interface {
	Arm(delay time.Duration, action delayed.Action)
}

// Outcome はメッセージの判定結果。
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeAllowed
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeDenied:
		return "denied"
	default:
		return "ignored"
	}
}

// Decision はHandleの結果。副作用（通知・削除・退室予約）はHandle内で実行済み。
type Decision struct {
	Outcome Outcome
	Role    access.Role
	Kind    string // "command" または "message"
	Command string
}

// Config は判定エンジンの設定。
type Config struct {
	Admins       access.AdminSet
	SubChannels  SubChannels
	TargetRoomID int64 // 退室処理の対象グループ。0の場合は退室予約しない
	AutoEvict    bool
	BotUsername  string // 他のボット宛てのコマンドを通常のメッセージとして扱うために使う
}

// Deps は判定エンジンの依存関係。
type Deps struct {
	Directory  access.Directory
	Store      *warning.Store
	Gateway    Gateway
	Scheduler  Scheduler
	Dispatcher Dispatcher
	Notices    *notice.Renderer
	Clock      clock.Clock
	Metrics    metrics.MetricsCollector
	Logger     *slog.Logger
}

// Engine はアクセス判定エンジン。
// メッセージは受信順に1件ずつHandleに渡されることを前提とする。
// 退室タスクは別のgoroutineからStoreとDirectoryにアクセスする。
type Engine struct {
	cfg    Config
	policy Policy

	dir        access.Directory
	store      *warning.Store
	gateway    Gateway
	scheduler  Scheduler
	dispatcher Dispatcher
	notices    *notice.Renderer
	clock      clock.Clock
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Engine{
		cfg:        cfg,
		policy:     NewPolicy(cfg.SubChannels),
		dir:        deps.Directory,
		store:      deps.Store,
		gateway:    deps.Gateway,
		scheduler:  deps.Scheduler,
		dispatcher: deps.Dispatcher,
		notices:    deps.Notices,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Policy は判定に使う権限表を返す。
func (e *Engine) Policy() Policy { return e.policy }

// Handle は受信メッセージを判定し、必要な通知・削除・退室予約を行う。
func (e *Engine) Handle(ctx context.Context, msg *model.InboundMessage) Decision {
	if msg.IsBot || msg.SenderID == 0 {
		return Decision{Outcome: OutcomeIgnored}
	}

	kind := "message"
	parsed, isCommand := command.Parse(msg.Text)
	if isCommand && !parsed.AddressedTo(e.cfg.BotUsername) {
		isCommand = false
	}
	if isCommand {
		kind = "command"
	}

	role, err := access.Classify(ctx, msg.SenderID, e.cfg.Admins, e.dir)
	if err != nil {
		// 登録簿の障害時は誰も罰しない
		e.logger.Error("送信者のロール判定に失敗したためメッセージを無視します",
			slog.Int64("user_id", msg.SenderID),
			slog.Int64("room_id", msg.RoomID),
			slog.String("error", err.Error()),
		)
		d := Decision{Outcome: OutcomeIgnored, Role: role, Kind: kind}
		e.record(d)
		return d
	}

	var d Decision
	switch {
	case role == access.RoleUnregistered:
		d = e.handleUnregistered(ctx, msg, kind)
	case isCommand:
		d = e.handleCommand(ctx, msg, role, parsed)
	default:
		d = e.handleMessage(ctx, msg, role)
	}
	e.record(d)
	return d
}

func (e *Engine) record(d Decision) {
	e.metrics.RecordDecision(d.Role.String(), d.Kind, d.Outcome.String())
}

func (e *Engine) handleUnregistered(ctx context.Context, msg *model.InboundMessage, kind string) Decision {
	now := e.clock.Now()

	delivered := e.store.RecordWarning(msg.SenderID, now, WarningWindow)
	e.metrics.RecordWarning(delivered)
	if delivered {
		e.sendNotice(ctx, msg.RoomID, msg.SubChannelID, notice.KindWarning, notice.Data{
			UserID:      msg.SenderID,
			DisplayName: msg.SenderDisplayName,
			GracePeriod: GracePeriod,
		})
	}

	if e.cfg.AutoEvict && e.cfg.TargetRoomID != 0 && e.store.TryArm(msg.SenderID) {
		e.armEviction(msg, now)
	}

	if err := e.gateway.DeleteMessage(ctx, msg.RoomID, msg.MessageID); err != nil {
		e.deliveryFailed("deleteMessage", msg.SenderID, err)
	}

	return Decision{Outcome: OutcomeDenied, Role: access.RoleUnregistered, Kind: kind}
}

func (e *Engine) handleCommand(ctx context.Context, msg *model.InboundMessage, role access.Role, cmd command.Parsed) Decision {
	d := Decision{Role: role, Kind: "command", Command: cmd.Name}

	recognized := e.dispatcher.Recognizes(cmd.Name)
	if !e.policy.CanCommand(role, cmd.Name, msg.SubChannelID, recognized) {
		d.Outcome = OutcomeDenied
		data := notice.Data{
			UserID:             msg.SenderID,
			DisplayName:        msg.SenderDisplayName,
			Command:            cmd.Name,
			SubChannel:         e.cfg.SubChannels.Name(msg.SubChannelID),
			AllowedSubChannels: e.policy.AllowedCommandSubChannels(role),
		}
		kind := notice.KindAdminCommandDeny
		if role == access.RoleRegistered {
			kind = notice.KindCommandDenied
			data.AllowedCommands = e.policy.AllowedCommands()
		}
		e.sendNotice(ctx, msg.RoomID, msg.SubChannelID, kind, data)
		return d
	}

	d.Outcome = OutcomeAllowed
	if err := e.dispatcher.Dispatch(ctx, msg, role, cmd); err != nil {
		e.logger.Error("コマンドの実行に失敗しました",
			slog.String("command", cmd.Name),
			slog.Int64("user_id", msg.SenderID),
			slog.String("error", err.Error()),
		)
	}
	return d
}

func (e *Engine) handleMessage(ctx context.Context, msg *model.InboundMessage, role access.Role) Decision {
	d := Decision{Role: role, Kind: "message"}
	if e.policy.CanSend(role, msg.SubChannelID) {
		d.Outcome = OutcomeAllowed
		return d
	}

	d.Outcome = OutcomeDenied
	e.sendNotice(ctx, msg.RoomID, msg.SubChannelID, notice.KindMessageDenied, notice.Data{
		UserID:             msg.SenderID,
		DisplayName:        msg.SenderDisplayName,
		SubChannel:         e.cfg.SubChannels.Name(msg.SubChannelID),
		AllowedSubChannels: e.policy.AllowedSubChannels(role),
	})
	return d
}

// sendNotice は通知を生成して送信する。失敗はログに記録して握りつぶす。
func (e *Engine) sendNotice(ctx context.Context, roomID int64, subChannelID int, kind notice.Kind, data notice.Data) {
	text, err := e.notices.Render(kind, data)
	if err != nil {
		e.logger.Error("通知文の生成に失敗しました",
			slog.String("notice", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := e.gateway.Send(ctx, roomID, subChannelID, text, true); err != nil {
		e.deliveryFailed("sendMessage", data.UserID, err)
	}
}

func (e *Engine) deliveryFailed(op string, userID int64, err error) {
	e.metrics.RecordDeliveryFailure(op)
	e.logger.Warn("ゲートウェイ呼び出しに失敗しました",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.String("error", err.Error()),
	)
}
