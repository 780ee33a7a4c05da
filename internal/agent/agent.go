// Package agent Gemini を使った農作業アシスタントの対話実装。
//
// ユーザーごとに会話履歴を持つ Agent と、そのライフサイクルを管理する
// Pool からなる。Agent 自体は並行安全ではなく、Pool がユーザー単位で
// 直列化する。
package agent

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/tomiyasu0428/agri-ai-agent/internal/storage"
	"github.com/tomiyasu0428/agri-ai-agent/pkg/logging"
)

// systemInstruction エージェントの役割定義
const systemInstruction = `あなたは農業管理AIエージェントです。ダチョウファームの農作業員や管理者をサポートします。

あなたの役割:
1. 農作業員の質問に対して具体的で実用的な回答を提供する
2. 作業タスクの管理と進捗確認をサポートする
3. 圃場の状況に基づいた農薬や作業の提案を行う
4. 作業完了報告を処理し、次回作業を自動スケジューリングする

応答の際の注意点:
- 常に安全第一で、農薬使用時は希釈倍率や天候条件を確認するよう指導する
- 作業員のスキルレベルに関わらず、分かりやすい説明を心がける
- 不明な点がある場合は、適切なツールを使用して情報を取得する
- 緊急時や判断に迷う場合は、熟練者に相談するよう促す

利用可能なツール:
- get_today_tasks: 今日のタスクを取得
- complete_task: 作業完了を記録
- get_field_status: 圃場の現在の状況を確認
- recommend_pesticide: 農薬の推奨を提供

常に親切で専門的な態度で、農作業員が自信を持って作業できるようサポートしてください。`

const (
	// DefaultModel 既定の生成モデル
	DefaultModel = "gemini-2.0-flash"

	// maxToolRounds 1 メッセージあたりのツール往復上限
	maxToolRounds = 8

	// maxHistoryContents 保持する会話履歴の上限（超過分は古い方から捨てる）
	maxHistoryContents = 40
)

// Agent 1 ユーザー分の対話セッション
type Agent struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	runner  *toolRunner
	logger  *logging.Logger
	history []*genai.Content
}

// newAgent 共有クライアントからセッションを作る
func newAgent(client *genai.Client, modelName string, store storage.AgriStore, now func() time.Time, logger *logging.Logger) *Agent {
	return &Agent{
		client: client,
		model:  modelName,
		config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.1),
			Tools:             toolDeclarations(),
		},
		runner: &toolRunner{store: store, now: now},
		logger: logger,
	}
}

// Respond メッセージを処理して応答文を返す。
// contextSnapshot には会話コンテキストの要約（空可）を渡す。
func (a *Agent) Respond(ctx context.Context, userID, message, contextSnapshot string) (string, error) {
	prompt := fmt.Sprintf("ユーザーID: %s\nメッセージ: %s", userID, message)
	if contextSnapshot != "" {
		prompt = fmt.Sprintf("会話コンテキスト:\n%s\n\n%s", contextSnapshot, prompt)
	}
	a.history = append(a.history, genai.NewContentFromText(prompt, genai.RoleUser))

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.Models.GenerateContent(ctx, a.model, a.history, a.config)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", fmt.Errorf("empty model response")
		}
		a.history = append(a.history, resp.Candidates[0].Content)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			a.trimHistory()
			return resp.Text(), nil
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			a.logger.Info("tool call", "tool", call.Name, "user_id", userID)
			result := a.runner.run(ctx, call.Name, call.Args)
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{
				"result": result,
			}))
		}
		a.history = append(a.history, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	a.trimHistory()
	return "", fmt.Errorf("tool rounds exceeded (%d)", maxToolRounds)
}

// ClearHistory 会話履歴を消す
func (a *Agent) ClearHistory() {
	a.history = nil
}

// HistoryLen 保持している会話履歴の件数
func (a *Agent) HistoryLen() int {
	return len(a.history)
}

// trimHistory 履歴が上限を超えたら古い方から捨てる
func (a *Agent) trimHistory() {
	if len(a.history) > maxHistoryContents {
		a.history = a.history[len(a.history)-maxHistoryContents:]
	}
}
