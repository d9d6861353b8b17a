// Package telegram はTelegram Bot APIを使ったメッセージングゲートウェイを提供する。
// フォーラムのトピックをサブチャンネルとして扱う。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/metrics"
	"github.com/hitoshi/roomguard/internal/model"
)

// DefaultBaseURL はBot APIのベースURL。
const DefaultBaseURL = "https://api.telegram.org"

// maxResponseSize はレスポンスボディの読み取り上限。
const maxResponseSize = 4 << 20

// Options はClientの設定。
type Options struct {
	BaseURL   string
	Token     string
	RateLimit float64 // 1秒あたりの送信数。0以下の場合は制限しない
	Burst     int
	Metrics   metrics.MetricsCollector
	Clock     clock.Clock
}

// Client はBot APIのクライアント。
// 送信系の呼び出しはレートリミッターで間隔を空ける。getUpdatesは対象外。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // {BaseURL}/bot{Token}
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	clock      clock.Clock
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, opts Options, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(opts.BaseURL, "/") + "/bot" + opts.Token,
		limiter:    limiter,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
	}
}

// apiResponse はBot APIの共通レスポンス形式。
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call はAPIメソッドを呼び出し、resultにデコードする。
// 失敗はすべて*model.DeliveryErrorとして返す。
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	start := time.Now()
	defer func() { c.metrics.RecordGatewayLatency(method, time.Since(start)) }()

	body, err := json.Marshal(params)
	if err != nil {
		return &model.DeliveryError{Op: method, Err: fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, bytes.NewReader(body))
	if err != nil {
		return &model.DeliveryError{Op: method, Err: redact(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.DeliveryError{Op: method, Err: redact(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &model.DeliveryError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)}
	}

	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return &model.DeliveryError{Op: method, StatusCode: resp.StatusCode, Description: "invalid response body"}
	}
	if !r.OK {
		code := r.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &model.DeliveryError{Op: method, StatusCode: code, Description: r.Description}
	}

	if result != nil && len(r.Result) > 0 {
		if err := json.Unmarshal(r.Result, result); err != nil {
			return &model.DeliveryError{Op: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("resultのデコードに失敗しました: %w", err)}
		}
	}
	return nil
}

// redact はURLに含まれるトークンがエラーメッセージに出ないようにする。
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func (c *Client) wait(ctx context.Context, method string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &model.DeliveryError{Op: method, Err: err}
	}
	return nil
}

type sendMessageParams struct {
	ChatID          int64  `json:"chat_id"`
	MessageThreadID int    `json:"message_thread_id,omitempty"`
	Text            string `json:"text"`
	ParseMode       string `json:"parse_mode,omitempty"`
}

// Send はメッセージを送信する。subChannelIDが0の場合はトピックを指定しない。
// richの場合はHTMLとして送信し、解釈できないと返された場合は1回だけプレーンテキストで再送する。
func (c *Client) Send(ctx context.Context, roomID int64, subChannelID int, text string, rich bool) error {
	if err := c.wait(ctx, "sendMessage"); err != nil {
		return err
	}

	params := sendMessageParams{ChatID: roomID, MessageThreadID: subChannelID, Text: text}
	if rich {
		params.ParseMode = "HTML"
	}

	err := c.call(ctx, "sendMessage", params, nil)
	if err == nil || !rich || !isEntityParseError(err) {
		return err
	}

	c.logger.Warn("HTMLとして解釈できなかったためプレーンテキストで再送します",
		slog.Int64("chat_id", roomID),
		slog.String("error", err.Error()),
	)
	params.ParseMode = ""
	params.Text = PlainText(text)
	if err := c.wait(ctx, "sendMessage"); err != nil {
		return err
	}
	return c.call(ctx, "sendMessage", params, nil)
}

func isEntityParseError(err error) bool {
	var de *model.DeliveryError
	return errors.As(err, &de) && de.StatusCode == http.StatusBadRequest &&
		strings.Contains(de.Description, "can't parse entities")
}

// DeleteMessage はメッセージを削除する。
func (c *Client) DeleteMessage(ctx context.Context, roomID int64, messageID int) error {
	if err := c.wait(ctx, "deleteMessage"); err != nil {
		return err
	}
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    roomID,
		"message_id": messageID,
	}, nil)
}

// Evict はユーザーをグループから退室させ、suspensionの間は再参加できないようにする。
func (c *Client) Evict(ctx context.Context, roomID, userID int64, suspension time.Duration) error {
	if err := c.wait(ctx, "banChatMember"); err != nil {
		return err
	}
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id":         roomID,
		"user_id":         userID,
		"until_date":      c.clock.Now().Add(suspension).Unix(),
		"revoke_messages": false,
	}, nil)
}

// GetUpdates はoffset以降のアップデートをロングポーリングで取得する。
// HTTPクライアントのタイムアウトはtimeoutより長くしておくこと。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
