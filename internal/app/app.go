package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/command"
	"github.com/hitoshi/roomguard/internal/config"
	"github.com/hitoshi/roomguard/internal/database"
	"github.com/hitoshi/roomguard/internal/enforce"
	"github.com/hitoshi/roomguard/internal/handler"
	"github.com/hitoshi/roomguard/internal/logger"
	"github.com/hitoshi/roomguard/internal/member"
	"github.com/hitoshi/roomguard/internal/metrics"
	"github.com/hitoshi/roomguard/internal/middleware"
	"github.com/hitoshi/roomguard/internal/notice"
	"github.com/hitoshi/roomguard/internal/repository"
	"github.com/hitoshi/roomguard/internal/telegram"
	"github.com/hitoshi/roomguard/internal/warning"
	"github.com/hitoshi/roomguard/internal/worker/cleanup"
	"github.com/hitoshi/roomguard/internal/worker/delayed"
	"github.com/hitoshi/roomguard/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	log := slog.Default()

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		// SIGINTまたはSIGTERMでグレースフルシャットダウンする
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, log)
	}
}

// runServe はボットと管理APIサーバーを起動する。
// DB接続を開き、全依存関係をワイヤリングし、ポーリングとHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. DB接続とマイグレーション
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if !database.IsSQLite(cfg.DatabaseURL) {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info("database connection established")

	// 2. リポジトリと状態の初期化
	repo := repository.NewMemberRepository(db, cfg.DatabaseURL)
	store := warning.NewStore()
	clk := clock.Real()

	scheduler := delayed.NewScheduler(clk, log)
	defer scheduler.Stop()

	// 3. 通知文
	notices, err := notice.Load(cfg.NoticesFile)
	if err != nil {
		return fmt.Errorf("failed to load notices: %w", err)
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	metrics.PendingFunc(reg, "roomguard_pending_evictions", "退室予約中のユーザー数",
		func() int { return len(store.Armed()) })
	metrics.PendingFunc(reg, "roomguard_scheduled_tasks", "未実行の遅延タスク数", scheduler.Pending)

	// 5. ゲートウェイ
	gateway := telegram.NewClient(
		// ロングポーリングの待ち時間より長くする
		&http.Client{Timeout: cfg.PollTimeout + 15*time.Second},
		telegram.Options{
			BaseURL:   cfg.TelegramAPIURL,
			Token:     cfg.BotToken,
			RateLimit: cfg.GatewayRateLimit,
			Burst:     cfg.GatewayBurst,
			Metrics:   collector,
			Clock:     clk,
		},
		log,
	)

	// 6. ドメインサービスの初期化
	admins := access.NewAdminSet(cfg.AdminID)
	memberService := member.NewService(repo, store, admins, clk, log)

	commands := command.NewRouter(gateway, log)
	command.RegisterBuiltins(commands, memberService, notices)

	engine := enforce.NewEngine(enforce.Config{
		Admins: admins,
		SubChannels: enforce.SubChannels{
			General:      cfg.SubChannelGeneral,
			Application:  cfg.SubChannelApplication,
			Tutorial:     cfg.SubChannelTutorial,
			Report:       cfg.SubChannelReport,
			Announcement: cfg.SubChannelAnnouncement,
		},
		TargetRoomID: cfg.GroupRoomID,
		AutoEvict:    cfg.AutoEvictEnabled,
		BotUsername:  cfg.BotUsername,
	}, enforce.Deps{
		Directory:  repo,
		Store:      store,
		Gateway:    gateway,
		Scheduler:  scheduler,
		Dispatcher: commands,
		Notices:    notices,
		Clock:      clk,
		Metrics:    collector,
		Logger:     log,
	})

	poller := poll.NewPoller(gateway, engine, clk, collector, log, cfg.PollTimeout)

	// 7. ルーターの構築
	var rateLimiter *middleware.RateLimiter
	if cfg.AdminAPIToken != "" {
		rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
		defer rateLimiter.Stop()
	} else {
		log.Info("ADMIN_API_TOKEN is not set; admin API is disabled")
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        log,
		HealthChecker: db,
		Gatherer:      reg,
		AdminAPIToken: cfg.AdminAPIToken,
		RateLimiter:   rateLimiter,
		MemberService: memberService,
	})

	// 8. HTTPサーバーとポーリングの起動
	listener, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	pollErr := make(chan error, 1)
	go func() { pollErr <- poller.Start(pollCtx) }()

	go cleanup.NewCleanupJob(store, clk, log).Start(pollCtx)

	log.Info("roomguard started",
		slog.Int64("group_room_id", cfg.GroupRoomID),
		slog.Bool("auto_evict", cfg.AutoEvictEnabled),
		slog.Duration("grace_period", enforce.GracePeriod),
	)

	var runErr error
	pollStopped := false
	select {
	case <-ctx.Done():
		log.Info("shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("server listen error: %w", err)
	case err := <-pollErr:
		// ctxが生きている間にポーリングが終わるのは停止が必要なエラーのみ
		if err == nil {
			err = errors.New("poller stopped unexpectedly")
		}
		runErr = err
		pollStopped = true
	}

	cancelPoll()
	if !pollStopped {
		<-pollErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	if runErr == nil {
		log.Info("roomguard stopped gracefully",
			slog.Int("dropped_evictions", scheduler.Pending()),
		)
	}
	return runErr
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(databaseURL string) string {
	if database.IsSQLite(databaseURL) {
		return databaseURL
	}
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
