package linebot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomiyasu0428/agri-ai-agent/internal/nlp"
	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// stubDialogue 対話エージェントのスタブ
type stubDialogue struct {
	mu       sync.Mutex
	messages []string
	resets   []string
	reply    string
	err      error
}

func (d *stubDialogue) Process(ctx context.Context, userID, message, snapshot string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, message)
	if d.err != nil {
		return "", d.err
	}
	return d.reply, nil
}

func (d *stubDialogue) Reset(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets = append(d.resets, userID)
}

// fakeLINE LINE Messaging API のスタブサーバー
type fakeLINE struct {
	mu      sync.Mutex
	replies [][]string
	srv     *httptest.Server
}

func newFakeLINE(t *testing.T) *fakeLINE {
	t.Helper()
	f := &fakeLINE{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/bot/message/reply":
			var req replyRequest
			json.NewDecoder(r.Body).Decode(&req)
			texts := make([]string, len(req.Messages))
			for i, msg := range req.Messages {
				texts[i] = msg.Text
			}
			f.mu.Lock()
			f.replies = append(f.replies, texts)
			f.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/bot/profile/"):
			json.NewEncoder(w).Encode(Profile{DisplayName: "田中", UserID: "U1"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLINE) lastReply() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil
	}
	return f.replies[len(f.replies)-1]
}

// waitReply 非同期処理の返信を待つ
func (f *fakeLINE) waitReply(t *testing.T, count int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := len(f.replies)
		f.mu.Unlock()
		if n >= count {
			return f.lastReply()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no reply received (want %d)", count)
	return nil
}

type handlerFixture struct {
	handler  *Handler
	contexts *nlp.ContextManager
	store    *storage.MemoryStore
	dialogue *stubDialogue
	line     *fakeLINE
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	store := storage.NewMemoryStore()
	store.SetNow(func() time.Time { return at })
	contexts := nlp.NewContextManager(50)
	parser := nlp.NewWorkReportParser(nil)
	dialogue := &stubDialogue{reply: "今日のタスクは防除です"}
	line := newFakeLINE(t)
	client := NewClient("token", line.srv.URL)

	h := NewHandler(contexts, parser, store, dialogue, client, NewMetrics("agri_test"), logging.Default("test"))
	h.now = func() time.Time { return at }

	return &handlerFixture{handler: h, contexts: contexts, store: store, dialogue: dialogue, line: line}
}

func textEvent(userID, text string) Event {
	return Event{
		Type:       EventTypeMessage,
		ReplyToken: "rt-1",
		Source:     EventSource{Type: "user", UserID: userID},
		Message:    EventMessage{Type: MessageTypeText, Text: text},
	}
}

func TestHandler_HelpCommand(t *testing.T) {
	f := newHandlerFixture(t)

	err := f.handler.HandleEvent(context.Background(), textEvent("U1", "ヘルプ"))
	require.NoError(t, err)

	reply := f.line.lastReply()
	require.Len(t, reply, 1)
	assert.Contains(t, reply[0], "農業AIアシスタント - ヘルプ")
	assert.Empty(t, f.dialogue.messages)
}

func TestHandler_ResetCommand(t *testing.T) {
	f := newHandlerFixture(t)
	f.contexts.UpdateContext("U1", map[string]string{"current_task": "防除"})

	err := f.handler.HandleEvent(context.Background(), textEvent("U1", "リセット"))
	require.NoError(t, err)

	assert.Equal(t, []string{"U1"}, f.dialogue.resets)
	assert.Empty(t, f.contexts.GetContext("U1").CurrentTask)
	assert.Contains(t, f.line.lastReply()[0], "リセットしました")
}

func TestHandler_WorkReport(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	err := f.handler.HandleEvent(ctx, textEvent("U1",
		"F14で大豆の防除を完了しました。クプロシールドを1000倍希釈で散布。9:00から11:30まで作業。"))
	require.NoError(t, err)

	reply := f.line.lastReply()
	require.Len(t, reply, 1)
	assert.Contains(t, reply[0], "📋 作業報告を受け付けました")
	assert.Contains(t, reply[0], "作業: 防除")
	assert.Contains(t, reply[0], "圃場: F14")
	assert.Contains(t, reply[0], "使用資材: クプロシールド")
	// 日付表現がないので既定日（処理日）が入る
	assert.Contains(t, reply[0], "日付: 2026-03-10")

	// 原文と解析結果が保存されている
	records, err := f.store.GetRecentWorkReports(ctx, "U1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].RawText, "クプロシールド")
	assert.Equal(t, "防除", records[0].Report.TaskName)

	// 作業履歴にも追加されている
	assert.Len(t, f.contexts.GetContext("U1").WorkHistory, 1)
	// 対話エージェントには渡らない
	assert.Empty(t, f.dialogue.messages)
}

func TestHandler_EllipsisBeforeClassification(t *testing.T) {
	f := newHandlerFixture(t)
	f.contexts.UpdateContext("U1", map[string]string{"current_task": "防除"})

	err := f.handler.HandleEvent(context.Background(), textEvent("U1", "それが完了しました"))
	require.NoError(t, err)

	// 「それ」が防除に解決されてから報告として解析される
	reply := f.line.lastReply()
	assert.Contains(t, reply[0], "作業: 防除")
}

func TestHandler_DialogueFallback(t *testing.T) {
	f := newHandlerFixture(t)

	err := f.handler.HandleEvent(context.Background(), textEvent("U1", "今日の作業は？"))
	require.NoError(t, err)

	require.Equal(t, []string{"今日の作業は？"}, f.dialogue.messages)
	assert.Equal(t, "今日のタスクは防除です", f.line.lastReply()[0])
}

func TestHandler_DialogueError(t *testing.T) {
	f := newHandlerFixture(t)
	f.dialogue.err = context.DeadlineExceeded

	err := f.handler.HandleEvent(context.Background(), textEvent("U1", "今日の作業は？"))
	require.NoError(t, err)

	assert.Contains(t, f.line.lastReply()[0], "申し訳ございません")
}

func TestHandler_FollowEvent(t *testing.T) {
	f := newHandlerFixture(t)

	event := Event{
		Type:       EventTypeFollow,
		ReplyToken: "rt-f",
		Source:     EventSource{Type: "user", UserID: "U1"},
	}
	require.NoError(t, f.handler.HandleEvent(context.Background(), event))

	reply := f.line.lastReply()
	assert.Contains(t, reply[0], "田中さん")
	assert.Contains(t, reply[0], "農業AIアシスタントへようこそ")
}

func TestHandler_UnfollowEvent(t *testing.T) {
	f := newHandlerFixture(t)
	f.contexts.UpdateContext("U1", map[string]string{"current_task": "防除"})

	event := Event{
		Type:   EventTypeUnfollow,
		Source: EventSource{Type: "user", UserID: "U1"},
	}
	require.NoError(t, f.handler.HandleEvent(context.Background(), event))

	assert.Equal(t, []string{"U1"}, f.dialogue.resets)
	assert.Empty(t, f.contexts.GetContext("U1").CurrentTask)
}

func TestHandler_NonTextMessageIgnored(t *testing.T) {
	f := newHandlerFixture(t)

	event := Event{
		Type:       EventTypeMessage,
		ReplyToken: "rt-1",
		Source:     EventSource{Type: "user", UserID: "U1"},
		Message:    EventMessage{Type: "sticker"},
	}
	require.NoError(t, f.handler.HandleEvent(context.Background(), event))
	assert.Nil(t, f.line.lastReply())
}
