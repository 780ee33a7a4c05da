// Package linebot LINE Messaging API 向けのトランスポート層。
//
// Webhook で受けたメッセージを NLP コアと対話エージェントにつなぎ、
// 返信を組み立てる。1 ユーザーのメッセージは直列に処理し、
// 別ユーザー同士は並行に処理する。
package linebot

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
	"github.com/tomiyasu0428/agri-ai-agent/internal/nlp"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// Dialogue 作業報告以外のメッセージを処理する対話エージェント
type Dialogue interface {
	Process(ctx context.Context, userID, message, contextSnapshot string) (string, error)
	Reset(userID string)
}

// userLockShards ユーザー直列化用ロックのシャード数
const userLockShards = 64

// Handler Webhook イベントをパイプラインに流す
type Handler struct {
	contexts *nlp.ContextManager
	parser   *nlp.WorkReportParser
	store    storage.AgriStore
	dialogue Dialogue
	client   *Client
	metrics  *Metrics
	logger   *logging.Logger
	now      func() time.Time

	userLocks [userLockShards]sync.Mutex
}

// NewHandler ハンドラーを組み立てる
func NewHandler(contexts *nlp.ContextManager, parser *nlp.WorkReportParser, store storage.AgriStore, dialogue Dialogue, client *Client, metrics *Metrics, logger *logging.Logger) *Handler {
	return &Handler{
		contexts: contexts,
		parser:   parser,
		store:    store,
		dialogue: dialogue,
		client:   client,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// userLock 同一ユーザーのメッセージを直列化するロックを返す
func (h *Handler) userLock(userID string) *sync.Mutex {
	hash := fnv.New32a()
	hash.Write([]byte(userID))
	return &h.userLocks[hash.Sum32()%userLockShards]
}

// HandleEvent 1 件の Webhook イベントを処理する
func (h *Handler) HandleEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeMessage:
		if event.Message.Type != MessageTypeText {
			return nil
		}
		return h.handleTextMessage(ctx, event)

	case EventTypeFollow:
		return h.handleFollow(ctx, event)

	case EventTypeUnfollow:
		userID := event.Source.UserID
		h.logger.Info("user unfollowed", "user_id", userID)
		h.dialogue.Reset(userID)
		h.contexts.ClearContext(userID)
		return nil

	case EventTypeJoin:
		return h.reply(ctx, event.ReplyToken, groupWelcomeMessage)

	case EventTypeLeave:
		h.logger.Info("bot left group", "group_id", event.Source.GroupID)
		return nil
	}
	return nil
}

func (h *Handler) handleTextMessage(ctx context.Context, event Event) error {
	userID := event.Source.UserID
	text := event.Message.Text
	h.logger.Info("message received", "user_id", userID)

	reply, kind := h.processText(ctx, userID, text)
	if err := h.reply(ctx, event.ReplyToken, reply); err != nil {
		return err
	}
	h.logger.Info("response sent", "user_id", userID, "kind", kind)
	return nil
}

func (h *Handler) handleFollow(ctx context.Context, event Event) error {
	userID := event.Source.UserID

	userName := "ユーザー"
	if profile, err := h.client.GetProfile(ctx, userID); err == nil && profile.DisplayName != "" {
		userName = profile.DisplayName
	}

	h.logger.Info("new follower", "user_id", userID)
	return h.reply(ctx, event.ReplyToken, welcomeMessage(userName))
}

// processText メッセージ本文をパイプラインに通して応答文と処理種別を返す
func (h *Handler) processText(ctx context.Context, userID, text string) (string, string) {
	lock := h.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	start := h.now()
	reply, kind := h.processTextLocked(ctx, userID, text)
	h.metrics.RecordMessage(kind, h.now().Sub(start))
	return reply, kind
}

func (h *Handler) processTextLocked(ctx context.Context, userID, text string) (string, string) {
	switch ParseCommand(text) {
	case CommandHelp:
		return helpMessage, "command"
	case CommandReset:
		h.dialogue.Reset(userID)
		h.contexts.ClearContext(userID)
		return resetMessage, "command"
	case CommandStatus:
		return h.contexts.GetContextSummary(userID), "command"
	}

	h.contexts.AddQuestionToHistory(userID, text)
	resolved := h.contexts.ResolveEllipsis(userID, text)
	if inferred := h.contexts.InferContextFromMessage(userID, resolved); len(inferred) > 0 {
		h.contexts.UpdateContext(userID, inferred)
	}

	if IsWorkReport(resolved) {
		return h.processReport(ctx, userID, text, resolved), "report"
	}

	snapshot := h.contexts.GetContextSummary(userID)
	out, err := h.dialogue.Process(ctx, userID, resolved, snapshot)
	if err != nil {
		h.logger.WithError(err).Error("dialogue agent failed", "user_id", userID)
		h.metrics.AgentErrors.Inc()
		return "申し訳ございません。処理中にエラーが発生しました。しばらくしてからもう一度お試しください。", "dialogue"
	}
	return FormatAgentResponse(out), "dialogue"
}

// processReport 作業報告を解析・保存して要約を返す
func (h *Handler) processReport(ctx context.Context, userID, raw, resolved string) string {
	defaultDate := h.contexts.GetContext(userID).WorkingDate
	if defaultDate == "" {
		defaultDate = h.now().Format("2006-01-02")
	}

	report := h.parser.ParseReport(resolved, &nlp.ParseOptions{DefaultDate: defaultDate})
	issues := h.parser.ValidateReport(report)
	h.metrics.RecordReport(report.ConfidenceScore)

	record := &model.WorkRecord{UserID: userID, RawText: raw, Report: *report}
	if err := h.store.RecordWorkReport(ctx, record); err != nil {
		// 保存に失敗しても返信はする
		h.logger.WithError(err).Error("record work report failed", "user_id", userID)
	}
	h.contexts.AddWorkToHistory(userID, model.WorkEntryFromReport(report, h.now()))

	var b strings.Builder
	b.WriteString("📋 作業報告を受け付けました\n")
	b.WriteString(h.parser.FormatReportSummary(report))

	if len(issues.Errors) > 0 {
		b.WriteString("\n\n❌ エラー:")
		for _, msg := range issues.Errors {
			b.WriteString("\n• " + msg)
		}
	}
	if len(issues.Warnings) > 0 {
		b.WriteString("\n\n⚠️ 注意:")
		for _, msg := range issues.Warnings {
			b.WriteString("\n• " + msg)
		}
	}
	if len(issues.Suggestions) > 0 {
		b.WriteString("\n\n💡 提案:")
		for _, msg := range issues.Suggestions {
			b.WriteString("\n• " + msg)
		}
	}
	if report.NextTaskSuggestion != "" {
		b.WriteString("\n\n🔮 次回作業提案: " + report.NextTaskSuggestion)
	}
	return b.String()
}

// reply 応答を分割して返信する
func (h *Handler) reply(ctx context.Context, replyToken, message string) error {
	if err := h.client.ReplyMessage(ctx, replyToken, SplitMessage(message)); err != nil {
		h.metrics.ReplyErrors.Inc()
		h.logger.WithError(err).Error("reply failed")
		return err
	}
	return nil
}
