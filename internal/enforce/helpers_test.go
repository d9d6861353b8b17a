package enforce

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/command"
	"github.com/hitoshi/roomguard/internal/model"
	"github.com/hitoshi/roomguard/internal/notice"
	"github.com/hitoshi/roomguard/internal/warning"
	"github.com/hitoshi/roomguard/internal/worker/delayed"
)

const (
	testAdminID = int64(1)
	testRoomID  = int64(-1001)
)

var (
	epoch   = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	testSub = SubChannels{General: 10, Application: 11, Tutorial: 12, Report: 13, Announcement: 14}
)

type sentMessage struct {
	RoomID       int64
	SubChannelID int
	Text         string
	Rich         bool
}

type evictCall struct {
	RoomID     int64
	UserID     int64
	Suspension time.Duration
}

// fakeGateway はGatewayの呼び出しを記録するテスト用実装。
type fakeGateway struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []int
	evicted  []evictCall
	sendErr  error
	delErr   error
	evictErr error
}

func (g *fakeGateway) Send(ctx context.Context, roomID int64, subChannelID int, text string, rich bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{roomID, subChannelID, text, rich})
	return g.sendErr
}

func (g *fakeGateway) DeleteMessage(ctx context.Context, roomID int64, messageID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, messageID)
	return g.delErr
}

func (g *fakeGateway) Evict(ctx context.Context, roomID, userID int64, suspension time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evicted = append(g.evicted, evictCall{roomID, userID, suspension})
	return g.evictErr
}

func (g *fakeGateway) sentTo(roomID int64) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// memoryDirectory はメモリ上の登録簿。
type memoryDirectory struct {
	mu      sync.Mutex
	members map[int64]*model.Member
	err     error
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{members: make(map[int64]*model.Member)}
}

func (d *memoryDirectory) FindByID(ctx context.Context, userID int64) (*model.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.members[userID], nil
}

func (d *memoryDirectory) add(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[userID] = &model.Member{UserID: userID, DisplayName: "member"}
}

// fakeDispatcher は認識するコマンドと実行履歴を持つDispatcher。
type fakeDispatcher struct {
	known      map[string]bool
	dispatched []string
}

func (f *fakeDispatcher) Recognizes(name string) bool { return f.known[name] }

func (f *fakeDispatcher) Dispatch(ctx context.Context, msg *model.InboundMessage, role access.Role, cmd command.Parsed) error {
	f.dispatched = append(f.dispatched, cmd.Name)
	return nil
}

type harness struct {
	engine     *Engine
	clock      *clock.FakeClock
	gateway    *fakeGateway
	dir        *memoryDirectory
	store      *warning.Store
	scheduler  *delayed.Scheduler
	dispatcher *fakeDispatcher
	logs       *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.Fake(epoch)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	notices, err := notice.New(nil)
	require.NoError(t, err)

	h := &harness{
		clock:   clk,
		gateway: &fakeGateway{},
		dir:     newMemoryDirectory(),
		store:   warning.NewStore(),
		dispatcher: &fakeDispatcher{known: map[string]bool{
			"check-variable": true, "show-my-id": true, "register": true, "remove": true, "pending": true,
		}},
		logs: logs,
	}
	h.scheduler = delayed.NewScheduler(clk, logger)
	t.Cleanup(h.scheduler.Stop)

	h.engine = NewEngine(Config{
		Admins:       access.NewAdminSet(testAdminID),
		SubChannels:  testSub,
		TargetRoomID: testRoomID,
		AutoEvict:    true,
	}, Deps{
		Directory:  h.dir,
		Store:      h.store,
		Gateway:    h.gateway,
		Scheduler:  h.scheduler,
		Dispatcher: h.dispatcher,
		Notices:    notices,
		Clock:      clk,
		Logger:     logger,
	})
	return h
}

func message(sender int64, sub int, text string) *model.InboundMessage {
	return &model.InboundMessage{
		MessageID:         int(sender)*100 + sub,
		SenderID:          sender,
		SenderDisplayName: "user",
		RoomID:            testRoomID,
		SubChannelID:      sub,
		Text:              text,
	}
}
