package linebot

import (
	"fmt"
	"regexp"
	"strings"
)

// ============================================================================
// 定型メッセージ
// ============================================================================

// welcomeMessage 友だち追加時の案内
func welcomeMessage(userName string) string {
	return fmt.Sprintf(`こんにちは、%sさん！🌾

農業AIアシスタントへようこそ！

主な機能：
📅 今日の作業確認
📝 作業報告の記録
🌾 圃場情報の確認
🧪 農薬・資材の推奨

使い方：
• 「今日の作業は？」
• 「F14で大豆の防除完了」
• 「F14の状況教えて」
• 「大豆の農薬について」

何かご質問がありましたら、お気軽にお声がけください！`, userName)
}

// groupWelcomeMessage グループ追加時の案内
const groupWelcomeMessage = `こんにちは！農業AIアシスタントです🌾

グループでご利用いただきありがとうございます。

主な機能：
• 今日の作業確認
• 作業報告の記録
• 圃場情報の確認
• 農薬・資材の推奨

何かご質問がありましたら、お気軽にお声がけください！`

// errorMessage 処理失敗時の定型文
const errorMessage = `申し訳ございません。
現在システムに問題が発生しております。

しばらくしてから再度お試しください。

問題が続く場合は、管理者にお問い合わせください。`

// helpMessage ヘルプコマンドの応答
const helpMessage = `🌾 農業AIアシスタント - ヘルプ

【基本的な使い方】

📅 今日の作業確認
• 「今日の作業は？」
• 「タスクを教えて」
• 「何をすればいい？」

📝 作業報告
• 「F14で大豆の防除完了」
• 「播種作業を午前中に実施」
• 「クプロシールドを1000倍で散布完了」

🌾 圃場情報
• 「F14の状況教えて」
• 「圃場の情報を確認」

🧪 農薬・資材
• 「大豆の農薬について」
• 「防除の推奨は？」

【その他のコマンド】
• 「ヘルプ」- このメッセージを表示
• 「リセット」- 会話履歴をリセット

何かご不明な点がございましたら、お気軽にお声がけください！`

// resetMessage リセットコマンドの応答
const resetMessage = "会話履歴をリセットしました。新しい会話を始めましょう！"

// ============================================================================
// メッセージ分類・整形
// ============================================================================

// Command 特別コマンド
type Command string

const (
	CommandNone   Command = ""
	CommandHelp   Command = "help"
	CommandReset  Command = "reset"
	CommandStatus Command = "status"
)

// ParseCommand メッセージから特別コマンドを判定する
func ParseCommand(message string) Command {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "ヘルプ", "help", "使い方", "説明":
		return CommandHelp
	case "リセット", "reset", "初期化", "クリア":
		return CommandReset
	case "ステータス", "status", "状態":
		return CommandStatus
	}
	return CommandNone
}

// reportIndicators 作業報告とみなす状態表現。
// 作業名単体（「防除の推奨は？」など）は質問の可能性が高いので含めない。
var reportIndicators = []string{
	"完了", "終了", "終わり", "終わった", "済み", "済んだ",
	"やった", "行った", "実施", "散布した",
	"これから", "やります", "途中",
}

// IsWorkReport メッセージが作業報告かどうかを判定する
func IsWorkReport(message string) bool {
	for _, indicator := range reportIndicators {
		if strings.Contains(message, indicator) {
			return true
		}
	}
	return false
}

var blankLinesRe = regexp.MustCompile(`\n\s*\n`)

// maxMessageRunes LINE のテキストメッセージ上限
const maxMessageRunes = 2000

// FormatAgentResponse エージェント応答を LINE 表示向けに整える
func FormatAgentResponse(response string) string {
	response = blankLinesRe.ReplaceAllString(response, "\n\n")
	response = strings.ReplaceAll(response, "**", "")
	response = strings.ReplaceAll(response, "*", "•")
	return response
}

// SplitMessage 長文を行単位で上限以下のチャンクに分割する
func SplitMessage(message string) []string {
	if len([]rune(message)) <= maxMessageRunes {
		return []string{message}
	}

	var chunks []string
	var current []rune
	for _, line := range strings.Split(message, "\n") {
		runes := []rune(line)
		need := len(runes)
		if len(current) > 0 {
			need++ // 行間の改行
		}
		if len(current)+need > maxMessageRunes {
			if len(current) > 0 {
				chunks = append(chunks, string(current))
				current = current[:0]
			}
			// 1 行だけで上限を超える場合は行内で切る
			for len(runes) > maxMessageRunes {
				chunks = append(chunks, string(runes[:maxMessageRunes]))
				runes = runes[maxMessageRunes:]
			}
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		chunks = append(chunks, string(current))
	}
	return chunks
}
