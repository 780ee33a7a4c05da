package nlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// atoi 正規表現で捕捉済みの数字列を変換する
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ============================================================================
// 解析パターン
// ============================================================================

// completionPatterns 完了表現から作業名候補を取り出すパターン（宣言順）
var completionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(.+?)(?:を|の)?(?:完了|終了|終わり|できた|やった|実施した|行った)`),
	regexp.MustCompile(`(.+?)(?:が|は)?(?:完了|終了|終わり|できた|やった|実施した|行った)`),
	regexp.MustCompile(`(.+?)(?:しました|した|完了しました)`),
}

// timeRangePatterns 作業時間帯のパターン（コロン形式 → チルダ形式 → 漢字形式）
var timeRangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,2}:\d{2})\s*(?:から|より)\s*(\d{1,2}:\d{2})\s*(?:まで|迄)`),
	regexp.MustCompile(`(\d{1,2}:\d{2})\s*(?:～|〜|−|ー)\s*(\d{1,2}:\d{2})`),
	regexp.MustCompile(`(\d{1,2}時\d{1,2}分)\s*(?:から|より)\s*(\d{1,2}時\d{1,2}分)\s*(?:まで|迄)`),
}

// materialUsagePatterns 資材使用表現のパターン
//
// 資材名の捕捉は句読点で止める。使用動詞に最も近い語を資材として
// 取り出すためで、文をまたいだ誤捕捉を防ぐ。
var materialUsagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`([^\s。、]+)(?:を|に)([^。]*?)(?:散布|使用|撒いた|かけた)`),
	regexp.MustCompile(`([^\s。、]+)(?:で|に)([^。]*?)(?:を|の)([^。]*?)(?:散布|使用|撒いた|かけた)`),
}

// dilutionRe 希釈倍率。文全体から検出し、抽出された全資材に付与される
// （マッチ範囲に限定しない挙動をそのまま維持している）
var dilutionRe = regexp.MustCompile(`(\d+)\s*倍`)

// 日付パターン（年月日形式を優先）
var (
	fullDateRe  = regexp.MustCompile(`(\d{4})[年/-](\d{1,2})[月/-](\d{1,2})日?`)
	monthDayRe  = regexp.MustCompile(`(\d{1,2})[月/-](\d{1,2})日?`)
	weatherRe   = regexp.MustCompile(`(?:天気|天候|気候)(?:は|:)?(.+?)(?:でした|だった|です|だ)`)
	noteLabelRe = regexp.MustCompile(`(?:備考|メモ|注意|問題|課題|その他)[：:]\s*(.+)`)
)

// nextTaskPatterns 次回作業提案のパターン
var nextTaskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`次(?:回|に)(?:は|の)?(.+?)(?:が|を|は)(?:必要|やる|する|実施)`),
	regexp.MustCompile(`今度(.+?)(?:が|を|は)(?:必要|やる|する|実施)`),
	regexp.MustCompile(`(?:次|今度)(.+?)(?:してください|した方がよい|すべき)`),
}

// キーワード集合
var (
	completionIndicators = []string{"完了", "終了", "終わり", "できた", "やった", "実施した", "行った"}
	pendingIndicators    = []string{"未完了", "未実施", "未着手", "途中", "継続中"}
	weatherKeywords      = []string{"晴れ", "曇り", "雨", "雪", "風", "暑い", "寒い", "湿度", "乾燥"}
)

// contextKeywordCategories 備考合成に使う文脈キーワード（カテゴリの宣言順）
var contextKeywordCategories = []struct {
	category string
	keywords []string
}{
	{"urgency", []string{"急いで", "至急", "すぐに", "早急に", "緊急"}},
	{"difficulty", []string{"難しい", "困難", "大変", "苦労", "問題"}},
	{"quality", []string{"良い", "悪い", "問題ない", "順調", "うまく"}},
	{"weather_concern", []string{"雨", "風", "暑い", "寒い", "曇り", "晴れ"}},
}

// ============================================================================
// WorkReportParser
// ============================================================================

// ParseOptions 解析時の補助情報
type ParseOptions struct {
	// DefaultDate 日付表現がないときに使う既定日（YYYY-MM-DD）
	DefaultDate string
}

// WorkReportParser 作業報告の自然文を構造化データに変換する
//
// Glossary を下位サービスとして使う。構築後は不変で並行利用できる。
type WorkReportParser struct {
	glossary *Glossary
	now      func() time.Time
}

// NewWorkReportParser パーサーを作る。glossary が nil なら新規構築する
func NewWorkReportParser(glossary *Glossary) *WorkReportParser {
	if glossary == nil {
		glossary = NewGlossary()
	}
	return &WorkReportParser{glossary: glossary, now: time.Now}
}

// ParseReport 作業報告テキストを解析する
//
// どの項目も抽出できなくてもエラーにはならず、
// 欠落は信頼度スコアと ValidateReport の結果に現れる。
func (p *WorkReportParser) ParseReport(text string, opts *ParseOptions) *model.ParsedWorkReport {
	normalized := p.glossary.ComprehensiveNormalize(text)

	report := &model.ParsedWorkReport{}
	report.TaskName = p.extractTaskName(normalized)
	report.FieldName = p.glossary.ExtractFieldName(normalized)
	report.CropName = p.extractCropName(normalized)
	report.CompletionStatus = p.extractCompletionStatus(normalized)
	report.WorkDate = p.extractDate(normalized, opts)
	report.StartTime, report.EndTime = p.extractTimeRange(normalized)
	report.MaterialsUsed = p.extractMaterials(normalized)
	report.QuantityApplied = p.extractQuantity(normalized)
	report.WeatherCondition = p.extractWeather(normalized)
	report.Notes = p.extractNotes(normalized)
	report.NextTaskSuggestion = p.extractNextTaskSuggestion(normalized)
	report.ConfidenceScore = p.confidenceScore(report, normalized, text)

	return report
}

// extractTaskName 完了表現の捕捉から作業名を取り出す
//
// 捕捉断片は辞書正規化（同義語一致）か、断片中の正準作業名で確定する。
// どちらでも確定しなければ次のパターンへ進み、最後にテキスト全体を
// 正準作業名で走査する。
func (p *WorkReportParser) extractTaskName(text string) string {
	for _, re := range completionPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if normalized := p.glossary.NormalizeTaskName(candidate); normalized != candidate {
			return normalized
		}
		for _, canonical := range p.glossary.CanonicalTaskNames() {
			if strings.Contains(candidate, canonical) {
				return canonical
			}
		}
	}

	for _, canonical := range p.glossary.CanonicalTaskNames() {
		if strings.Contains(text, canonical) {
			return canonical
		}
	}
	return ""
}

// extractCropName 正準作物名 → 同義語の順で直接走査する
func (p *WorkReportParser) extractCropName(text string) string {
	for _, canonical := range p.glossary.CanonicalCropNames() {
		if strings.Contains(text, canonical) {
			return canonical
		}
	}

	lower := strings.ToLower(text)
	for _, canonical := range p.glossary.CanonicalCropNames() {
		for _, syn := range p.glossary.CropSynonyms(canonical) {
			if strings.Contains(lower, syn) {
				return canonical
			}
		}
	}
	return ""
}

// extractCompletionStatus 完了チェックを先に行う
func (p *WorkReportParser) extractCompletionStatus(text string) string {
	for _, kw := range completionIndicators {
		if strings.Contains(text, kw) {
			return "完了"
		}
	}
	for _, kw := range pendingIndicators {
		if strings.Contains(text, kw) {
			return "未完了"
		}
	}
	return ""
}

// extractDate 相対日付 → 明示日付 → 呼び出し側の既定日の順で解決する
func (p *WorkReportParser) extractDate(text string, opts *ParseOptions) string {
	today := p.now()

	switch {
	case containsAny(text, []string{"今日", "きょう", "本日"}):
		return today.Format("2006-01-02")
	case containsAny(text, []string{"昨日", "きのう"}):
		return today.AddDate(0, 0, -1).Format("2006-01-02")
	case containsAny(text, []string{"明日", "あした", "あす"}):
		return today.AddDate(0, 0, 1).Format("2006-01-02")
	}

	if m := fullDateRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%s-%02d-%02d", m[1], atoi(m[2]), atoi(m[3]))
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return fmt.Sprintf("%d-%02d-%02d", today.Year(), atoi(m[1]), atoi(m[2]))
	}

	if opts != nil && opts.DefaultDate != "" {
		return opts.DefaultDate
	}
	return ""
}

// extractTimeRange 時間帯パターンを宣言順に試し、最初の一致を使う
func (p *WorkReportParser) extractTimeRange(text string) (string, string) {
	for _, re := range timeRangePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return p.glossary.NormalizeTime(m[1]), p.glossary.NormalizeTime(m[2])
		}
	}
	return "", ""
}

// extractMaterials 資材使用表現から資材エントリを抽出する
func (p *WorkReportParser) extractMaterials(text string) []model.MaterialUsage {
	var materials []model.MaterialUsage

	dilution := ""
	if m := dilutionRe.FindStringSubmatch(text); m != nil {
		dilution = m[1] + "倍"
	}

	for _, re := range materialUsagePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		original := strings.TrimSpace(m[1])
		materials = append(materials, model.MaterialUsage{
			Name:         p.glossary.NormalizeMaterialName(original),
			OriginalName: original,
			Dilution:     dilution,
		})
	}
	return materials
}

// extractQuantity 最初に見つかった数量表現の正規化形を使う
func (p *WorkReportParser) extractQuantity(text string) string {
	if quantities := p.glossary.ExtractQuantities(text); len(quantities) > 0 {
		return quantities[0].Normalized
	}
	return ""
}

// extractWeather 天候キーワード → ラベル付き表現の順で探す
func (p *WorkReportParser) extractWeather(text string) string {
	for _, kw := range weatherKeywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	if m := weatherRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractNotes 明示ラベル（備考: など）を優先し、
// なければ文脈キーワードの一致を「カテゴリ: 語」形式で合成する
func (p *WorkReportParser) extractNotes(text string) string {
	if m := noteLabelRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	var found []string
	for _, cat := range contextKeywordCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(text, kw) {
				found = append(found, cat.category+": "+kw)
			}
		}
	}
	if len(found) > 0 {
		return strings.Join(found, "; ")
	}
	return ""
}

// extractNextTaskSuggestion 次回作業の提案を抽出して正規化する
func (p *WorkReportParser) extractNextTaskSuggestion(text string) string {
	for _, re := range nextTaskPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return p.glossary.NormalizeTaskName(strings.TrimSpace(m[1]))
		}
	}
	return ""
}

// confidenceScore 抽出完全性の加点ヒューリスティック
//
// 10 点満点の加点方式を [0,1] に正規化する。統計的な確信度ではなく、
// 報告の充実度の代理指標として扱うこと。
func (p *WorkReportParser) confidenceScore(report *model.ParsedWorkReport, text, original string) float64 {
	score := 0.0
	const maxScore = 10.0

	if report.TaskName != "" {
		score += 2.0
	}
	if report.FieldName != "" {
		score += 1.5
	}
	if report.CompletionStatus != "" {
		score += 1.5
	}
	if report.WorkDate != "" {
		score += 1.0
	}
	if len(report.MaterialsUsed) > 0 {
		score += 1.0
	}
	if report.QuantityApplied != "" {
		score += 1.0
	}
	if report.WeatherCondition != "" {
		score += 0.5
	}
	if report.Notes != "" {
		score += 0.5
	}

	// 文量は正規化前の原文で測る（正規化は表記を短縮しうる）
	if utf8.RuneCountInString(original) > 50 {
		score += 1.0
	}

	// 辞書で正規化できたトークンごとに加点（上限 1.0）
	normalizedTerms := 0
	for _, term := range strings.Fields(text) {
		if p.glossary.NormalizeCropName(term) != term ||
			p.glossary.NormalizeTaskName(term) != term ||
			p.glossary.NormalizeMaterialName(term) != term {
			normalizedTerms++
		}
	}
	if normalizedTerms > 0 {
		score += min(float64(normalizedTerms)*0.2, 1.0)
	}

	return min(score/maxScore, 1.0)
}

// ValidateReport 解析結果を検証し、エラー・警告・改善提案に仕分ける
//
// 自然文の欠落・不整合は issue として返し、決して失敗にはしない。
func (p *WorkReportParser) ValidateReport(report *model.ParsedWorkReport) *model.ValidationIssues {
	issues := &model.ValidationIssues{}

	if report.TaskName == "" {
		issues.Errors = append(issues.Errors, "作業名が特定できませんでした")
	}
	if report.FieldName == "" {
		issues.Warnings = append(issues.Warnings, "圃場名が特定できませんでした")
	}
	if report.CompletionStatus == "" {
		issues.Warnings = append(issues.Warnings, "完了ステータスが不明です")
	}

	if report.StartTime != "" && report.EndTime != "" {
		start, errS := time.Parse("15:04", report.StartTime)
		end, errE := time.Parse("15:04", report.EndTime)
		switch {
		case errS != nil || errE != nil:
			issues.Warnings = append(issues.Warnings, "時刻の形式が正しくありません")
		case !start.Before(end):
			issues.Warnings = append(issues.Warnings, "開始時刻が終了時刻より遅いです")
		}
	}

	if report.ConfidenceScore < 0.7 {
		issues.Suggestions = append(issues.Suggestions, "より詳細な情報を提供してください")
	}
	if len(report.MaterialsUsed) == 0 && (report.TaskName == "防除" || report.TaskName == "施肥") {
		issues.Suggestions = append(issues.Suggestions, "使用した資材を明記してください")
	}

	return issues
}

// FormatReportSummary 解析結果の要約を 1 行で返す（信頼度はパーセント表記）
func (p *WorkReportParser) FormatReportSummary(report *model.ParsedWorkReport) string {
	var parts []string

	if report.TaskName != "" {
		parts = append(parts, "作業: "+report.TaskName)
	}
	if report.FieldName != "" {
		parts = append(parts, "圃場: "+report.FieldName)
	}
	if report.CompletionStatus != "" {
		parts = append(parts, "状態: "+report.CompletionStatus)
	}
	if report.WorkDate != "" {
		parts = append(parts, "日付: "+report.WorkDate)
	}
	if report.StartTime != "" && report.EndTime != "" {
		parts = append(parts, fmt.Sprintf("時間: %s - %s", report.StartTime, report.EndTime))
	}
	if len(report.MaterialsUsed) > 0 {
		names := make([]string, len(report.MaterialsUsed))
		for i, mat := range report.MaterialsUsed {
			names[i] = mat.Name
		}
		parts = append(parts, "使用資材: "+strings.Join(names, ", "))
	}
	if report.QuantityApplied != "" {
		parts = append(parts, "数量: "+report.QuantityApplied)
	}

	summary := strings.Join(parts, " | ")
	return summary + fmt.Sprintf(" (信頼度: %.1f%%)", report.ConfidenceScore*100)
}
