package nlp

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// DefaultMaxHistorySize 質問・作業履歴の既定上限
const DefaultMaxHistorySize = 50

// ============================================================================
// 推測・解決用のキーワードテーブル
// ============================================================================

// taskKeywordEntry 作業種別ごとの推測キーワード（宣言順、先勝ち）
type taskKeywordEntry struct {
	task     string
	keywords []string
}

var taskKeywordTable = []taskKeywordEntry{
	{"播種", []string{"種", "まく", "播く", "タネ", "seeding"}},
	{"防除", []string{"薬", "散布", "農薬", "防除", "pest"}},
	{"収穫", []string{"採る", "収穫", "取る", "harvest"}},
	{"施肥", []string{"肥料", "養分", "栄養", "fertilizer"}},
	{"除草", []string{"草", "雑草", "除草", "weed"}},
	{"耕耘", []string{"耕す", "耕転", "tillage"}},
	{"定植", []string{"植える", "定植", "transplant"}},
}

// temporalKeywordEntry 時間参照キーワードと日数オフセット
//
// hasDate=false のエントリ（今週・来週）は一致しても日付を確定しない。
type temporalKeywordEntry struct {
	keywords []string
	offset   int
	hasDate  bool
}

var temporalKeywordTable = []temporalKeywordEntry{
	{[]string{"今日", "きょう", "本日"}, 0, true},
	{[]string{"昨日", "きのう"}, -1, true},
	{[]string{"明日", "あした", "あす"}, 1, true},
	{[]string{"今週", "こんしゅう"}, 0, false},
	{[]string{"来週", "らいしゅう"}, 0, false},
}

// slotKind 文脈スロットの種別
type slotKind int

const (
	slotTask slotKind = iota
	slotField
	slotCrop
	slotDate
)

// pronounEntry 代名詞と解決候補スロット（優先順）
//
// 候補が空のエントリは表の監査可能性のために残してある。
// それ・あれ は候補が尽きた後も現在タスクで補完される（resolveEllipsis 参照）。
var pronounTable = []struct {
	pronoun string
	slots   []slotKind
}{
	{"それ", []slotKind{slotTask, slotField, slotCrop}},
	{"あれ", nil},
	{"この", nil},
	{"その", nil},
	{"どこ", []slotKind{slotField}},
	{"いつ", []slotKind{slotDate}},
	{"誰", nil},
}

// inferFieldPatterns 文脈推測で使う圃場名パターン（コード形式を優先）
var inferFieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`([A-Z]\d+)`),
	regexp.MustCompile(`([^\s]+(?:圃場|畑|ハウス))`),
	regexp.MustCompile(`([^\s]+(?:家裏|家前|横|北|南|東|西))`),
}

// ============================================================================
// ContextManager
// ============================================================================

// userContext 1 ユーザー分の文脈とその専用ロック
//
// ユーザーをまたぐ直列化を避けるため、ロックはユーザー単位に持つ。
type userContext struct {
	mu  sync.Mutex
	ctx model.ConversationContext
}

// ContextManager ユーザー単位の対話文脈を管理する
//
// マップ自体は RWMutex、各文脈はユーザー単位の Mutex で守る。
// 同一ユーザーの更新は last-write-wins。
type ContextManager struct {
	maxHistorySize int

	mu       sync.RWMutex
	contexts map[string]*userContext

	now func() time.Time // テストで差し替える
}

// NewContextManager 文脈マネージャを作る。maxHistorySize<=0 は既定値
func NewContextManager(maxHistorySize int) *ContextManager {
	if maxHistorySize <= 0 {
		maxHistorySize = DefaultMaxHistorySize
	}
	return &ContextManager{
		maxHistorySize: maxHistorySize,
		contexts:       make(map[string]*userContext),
		now:            time.Now,
	}
}

// getOrCreate ユーザー文脈を取得（なければ作成）
func (m *ContextManager) getOrCreate(userID string) *userContext {
	m.mu.RLock()
	uc, ok := m.contexts[userID]
	m.mu.RUnlock()
	if ok {
		return uc
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if uc, ok = m.contexts[userID]; ok {
		return uc
	}
	now := m.now()
	uc = &userContext{ctx: model.ConversationContext{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.contexts[userID] = uc
	return uc
}

// GetContext ユーザーの文脈のスナップショットを返す（なければ作成、失敗しない）
func (m *ContextManager) GetContext(userID string) model.ConversationContext {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return snapshot(&uc.ctx)
}

// snapshot スライスを複製した文脈のコピーを返す
func snapshot(c *model.ConversationContext) model.ConversationContext {
	out := *c
	out.RecentQuestions = append([]model.QuestionEntry(nil), c.RecentQuestions...)
	out.WorkHistory = append([]model.WorkEntry(nil), c.WorkHistory...)
	return out
}

// UpdateContext 指定されたスロットだけを上書きする
//
// 未知のスロット名は黙って無視する（エラーにしない）。
func (m *ContextManager) UpdateContext(userID string, updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "current_task":
			uc.ctx.CurrentTask = value
		case "current_field":
			uc.ctx.CurrentField = value
		case "current_crop":
			uc.ctx.CurrentCrop = value
		case "working_date":
			uc.ctx.WorkingDate = value
		}
	}
	uc.ctx.UpdatedAt = m.now()
}

// AddQuestionToHistory 質問を履歴に追加する（上限超過で先頭から削除）
func (m *ContextManager) AddQuestionToHistory(userID, question string) {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.ctx.RecentQuestions = append(uc.ctx.RecentQuestions, model.QuestionEntry{
		Question:  question,
		Timestamp: m.now(),
	})
	if n := len(uc.ctx.RecentQuestions); n > m.maxHistorySize {
		uc.ctx.RecentQuestions = uc.ctx.RecentQuestions[n-m.maxHistorySize:]
	}
	uc.ctx.UpdatedAt = m.now()
}

// AddWorkToHistory 作業記録を履歴に追加する
func (m *ContextManager) AddWorkToHistory(userID string, entry model.WorkEntry) {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	uc.ctx.WorkHistory = append(uc.ctx.WorkHistory, entry)
	if n := len(uc.ctx.WorkHistory); n > m.maxHistorySize {
		uc.ctx.WorkHistory = uc.ctx.WorkHistory[n-m.maxHistorySize:]
	}
	uc.ctx.UpdatedAt = m.now()
}

// InferContextFromMessage メッセージから文脈スロットを推測する
//
// 推測できたスロットだけを返し、文脈自体は書き換えない。
// マージするかどうかは呼び出し側が決める。
func (m *ContextManager) InferContextFromMessage(userID, message string) map[string]string {
	inferred := make(map[string]string)
	lower := strings.ToLower(message)

	// 作業種別（先勝ち）
	for _, e := range taskKeywordTable {
		if containsAny(lower, e.keywords) {
			inferred["current_task"] = e.task
			break
		}
	}

	// 時間参照 → 絶対日付
	for _, e := range temporalKeywordTable {
		if containsAny(lower, e.keywords) {
			if e.hasDate {
				inferred["working_date"] = m.now().AddDate(0, 0, e.offset).Format("2006-01-02")
			}
			break
		}
	}

	// 圃場名（コード形式 → 接尾辞形式の優先順、疑問表現は除外）
	for _, re := range inferFieldPatterns {
		if match := re.FindStringSubmatch(message); match != nil {
			if interrogativeRe.MatchString(match[1]) {
				continue
			}
			inferred["current_field"] = match[1]
			break
		}
	}

	return inferred
}

// ResolveEllipsis 代名詞・指示語を文脈スロットの値で置き換える
//
// 代名詞ごとに候補スロットを優先順で試し、最初に値を持つものを使う。
// どのスロットも空なら代名詞はそのまま残す（エラーにも削除にもしない）。
func (m *ContextManager) ResolveEllipsis(userID, message string) string {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	resolved := message
	for _, e := range pronounTable {
		if !strings.Contains(message, e.pronoun) {
			continue
		}
		for _, slot := range e.slots {
			if value := slotValue(&uc.ctx, slot); value != "" {
				resolved = strings.ReplaceAll(resolved, e.pronoun, value)
				break
			}
		}
	}

	// それ・あれ は現在タスクでも補完する
	if uc.ctx.CurrentTask != "" {
		resolved = strings.ReplaceAll(resolved, "それ", uc.ctx.CurrentTask)
		resolved = strings.ReplaceAll(resolved, "あれ", uc.ctx.CurrentTask)
	}

	return resolved
}

func slotValue(c *model.ConversationContext, slot slotKind) string {
	switch slot {
	case slotTask:
		return c.CurrentTask
	case slotField:
		return c.CurrentField
	case slotCrop:
		return c.CurrentCrop
	case slotDate:
		return c.WorkingDate
	}
	return ""
}

// GetRelevantContext メッセージに関連する文脈情報を選んで返す
//
// 設定済みスロットは常に含める。履歴・圃場・時間の各情報は
// メッセージ中のトリガーキーワードごとに独立して追加される。
func (m *ContextManager) GetRelevantContext(userID, message string) map[string]any {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	relevant := make(map[string]any)
	lower := strings.ToLower(message)

	if uc.ctx.CurrentTask != "" {
		relevant["current_task"] = uc.ctx.CurrentTask
	}
	if uc.ctx.CurrentField != "" {
		relevant["current_field"] = uc.ctx.CurrentField
	}
	if uc.ctx.CurrentCrop != "" {
		relevant["current_crop"] = uc.ctx.CurrentCrop
	}
	if uc.ctx.WorkingDate != "" {
		relevant["working_date"] = uc.ctx.WorkingDate
	}

	if containsAny(lower, []string{"前回", "この前", "昨日", "履歴"}) {
		if n := len(uc.ctx.WorkHistory); n > 0 {
			start := n - 3
			if start < 0 {
				start = 0
			}
			relevant["recent_work"] = append([]model.WorkEntry(nil), uc.ctx.WorkHistory[start:]...)
		}
	}

	if containsAny(lower, []string{"どこ", "場所", "圃場"}) {
		if uc.ctx.CurrentField != "" {
			relevant["field_info"] = map[string]string{
				"name": uc.ctx.CurrentField,
				"crop": uc.ctx.CurrentCrop,
			}
		}
	}

	if containsAny(lower, []string{"いつ", "時間", "日付"}) {
		relevant["temporal_info"] = map[string]string{
			"working_date": uc.ctx.WorkingDate,
			"current_time": m.now().Format("15:04"),
		}
	}

	return relevant
}

// SuggestNextQuestions 次の質問候補を最大 5 件返す
func (m *ContextManager) SuggestNextQuestions(userID string) []string {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	var suggestions []string

	if uc.ctx.CurrentTask != "" {
		suggestions = append(suggestions,
			fmt.Sprintf("%sの進捗はどうですか？", uc.ctx.CurrentTask),
			fmt.Sprintf("%sで何か困っていることはありますか？", uc.ctx.CurrentTask),
		)
	}
	if uc.ctx.CurrentField != "" {
		suggestions = append(suggestions,
			fmt.Sprintf("%sの状況を教えてください", uc.ctx.CurrentField),
			fmt.Sprintf("%sで今日やることは何ですか？", uc.ctx.CurrentField),
		)
	}

	if len(suggestions) == 0 {
		suggestions = []string{
			"今日のタスクを教えてください",
			"圃場の状況を確認したいです",
			"作業の完了を報告したいです",
			"農薬の推奨を知りたいです",
		}
	}

	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

// GetContextSummary 文脈の要約を人間可読な 1 行で返す
func (m *ContextManager) GetContextSummary(userID string) string {
	uc := m.getOrCreate(userID)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	var parts []string
	if uc.ctx.CurrentTask != "" {
		parts = append(parts, "現在のタスク: "+uc.ctx.CurrentTask)
	}
	if uc.ctx.CurrentField != "" {
		parts = append(parts, "対象圃場: "+uc.ctx.CurrentField)
	}
	if uc.ctx.CurrentCrop != "" {
		parts = append(parts, "作物: "+uc.ctx.CurrentCrop)
	}
	if uc.ctx.WorkingDate != "" {
		parts = append(parts, "作業日: "+uc.ctx.WorkingDate)
	}
	if n := len(uc.ctx.RecentQuestions); n > 0 {
		parts = append(parts, fmt.Sprintf("最近の質問数: %d", n))
	}
	if n := len(uc.ctx.WorkHistory); n > 0 {
		parts = append(parts, fmt.Sprintf("作業履歴数: %d", n))
	}

	if len(parts) == 0 {
		return "文脈情報がありません"
	}
	return strings.Join(parts, " | ")
}

// ClearContext ユーザーの文脈を破棄する
func (m *ContextManager) ClearContext(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, userID)
}

// CleanupOldContexts 一定日数更新のない文脈を掃除し、削除数を返す
func (m *ContextManager) CleanupOldContexts(daysThreshold int) int {
	if daysThreshold <= 0 {
		daysThreshold = 7
	}
	cutoff := m.now().AddDate(0, 0, -daysThreshold)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for userID, uc := range m.contexts {
		uc.mu.Lock()
		stale := uc.ctx.UpdatedAt.Before(cutoff)
		uc.mu.Unlock()
		if stale {
			delete(m.contexts, userID)
			removed++
		}
	}
	return removed
}

// Statistics 文脈マネージャの集計値（要求のたびに計算する）
type Statistics struct {
	TotalContexts             int     `json:"total_contexts"`
	ActiveContexts24h         int     `json:"active_contexts_24h"`
	AverageQuestionsPerUser   float64 `json:"average_questions_per_user"`
	AverageWorkHistoryPerUser float64 `json:"average_work_history_per_user"`
}

// GetStatistics 統計情報を返す
func (m *ContextManager) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{TotalContexts: len(m.contexts)}
	if stats.TotalContexts == 0 {
		return stats
	}

	activeCutoff := m.now().Add(-24 * time.Hour)
	totalQuestions := 0
	totalWork := 0
	for _, uc := range m.contexts {
		uc.mu.Lock()
		if uc.ctx.UpdatedAt.After(activeCutoff) {
			stats.ActiveContexts24h++
		}
		totalQuestions += len(uc.ctx.RecentQuestions)
		totalWork += len(uc.ctx.WorkHistory)
		uc.mu.Unlock()
	}

	stats.AverageQuestionsPerUser = round2(float64(totalQuestions) / float64(stats.TotalContexts))
	stats.AverageWorkHistoryPerUser = round2(float64(totalWork) / float64(stats.TotalContexts))
	return stats
}

// ExportContext 文脈を JSON にエクスポートする
func (m *ContextManager) ExportContext(userID string) ([]byte, error) {
	ctx := m.GetContext(userID)
	return json.Marshal(ctx)
}

// ImportContext JSON から文脈を復元する（既存の文脈は置き換える）
func (m *ContextManager) ImportContext(userID string, data []byte) error {
	var ctx model.ConversationContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return fmt.Errorf("nlp: import context: %w", err)
	}
	ctx.UserID = userID

	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[userID] = &userContext{ctx: ctx}
	return nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
