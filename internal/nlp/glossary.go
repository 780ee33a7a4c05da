// Package nlp 農業対話アシスタントの自然言語処理コア
//
// 3 つのコンポーネントで構成される：
//   - Glossary：用語辞書と表記正規化（glossary.go）
//   - ContextManager：ユーザー単位の対話文脈管理（context_manager.go）
//   - WorkReportParser：作業報告の構造化解析（report_parser.go）
//
// いずれも純粋なメモリ内計算で、I/O やブロッキングを含まない。
// 未知語や不一致は常にエラーではなく中立値（入力そのまま、空、nil）で返す。
package nlp

import (
	"regexp"
	"strings"

	"github.com/tomiyasu0428/agri-ai-agent/internal/model"
)

// ============================================================================
// 辞書テーブル
// ============================================================================

// synonymEntry 正準語とその同義語集合
//
// 参照はすべて宣言順で行う（先勝ち）。
type synonymEntry struct {
	canonical string
	synonyms  []string
}

// rewriteRule 正規表現による書き換え規則
//
// 宣言順に全文へ適用する。後段の規則は前段の書き換え結果に再マッチしてよい。
type rewriteRule struct {
	re   *regexp.Regexp
	repl string
}

// Glossary 農業用語の辞書と正規化サービス
//
// 構築後は不変で、複数ゴルーチンから同時に読んでよい。
type Glossary struct {
	cropSynonyms     []synonymEntry
	taskSynonyms     []synonymEntry
	materialSynonyms []synonymEntry
	statusSynonyms   []synonymEntry

	unitRules     []rewriteRule // 面積→容量→重量の宣言順
	timeRules     []rewriteRule
	dilutionRules []rewriteRule

	fieldPatterns    []*regexp.Regexp
	quantityPatterns []*regexp.Regexp
}

// NewGlossary 辞書を構築する
func NewGlossary() *Glossary {
	return &Glossary{
		cropSynonyms: []synonymEntry{
			{"大豆", []string{"だいず", "ダイズ", "soybean", "soybeans"}},
			{"ブロッコリー", []string{"ブロッコリ", "broccoli"}},
			{"キャベツ", []string{"cabbage", "きゃべつ"}},
			{"トマト", []string{"tomato", "とまと"}},
			{"きゅうり", []string{"cucumber", "キュウリ", "胡瓜"}},
			{"なす", []string{"eggplant", "ナス", "茄子"}},
			{"ピーマン", []string{"pepper"}},
			{"レタス", []string{"lettuce", "れたす"}},
		},
		taskSynonyms: []synonymEntry{
			{"播種", []string{"はしゅ", "種まき", "タネまき", "seeding", "sowing"}},
			{"定植", []string{"ていしょく", "植え付け", "transplanting"}},
			{"防除", []string{"ぼうじょ", "農薬散布", "薬剤散布", "pest control"}},
			{"収穫", []string{"しゅうかく", "harvest", "harvesting"}},
			{"施肥", []string{"せひ", "肥料やり", "fertilizing"}},
			{"除草", []string{"じょそう", "草取り", "weeding"}},
			{"畝立て", []string{"うねたて", "畝作り", "ridging"}},
			{"耕耘", []string{"こううん", "耕起", "tillage"}},
			{"灌水", []string{"かんすい", "水やり", "irrigation"}},
			{"剪定", []string{"せんてい", "枝切り", "pruning"}},
		},
		materialSynonyms: []synonymEntry{
			{"農薬", []string{"のうやく", "薬剤", "pesticide", "chemical"}},
			{"肥料", []string{"ひりょう", "fertilizer"}},
			{"種子", []string{"しゅし", "タネ", "seed", "seeds"}},
			{"苗", []string{"なえ", "seedling", "seedlings"}},
			{"マルチ", []string{"マルチフィルム", "mulch", "mulching"}},
		},
		statusSynonyms: []synonymEntry{
			{"完了", []string{"かんりょう", "終了", "完成", "done", "finished", "completed"}},
			{"未完了", []string{"みかんりょう", "未実施", "未着手", "todo", "pending"}},
			{"進行中", []string{"しんこうちゅう", "作業中", "実施中", "in progress", "working"}},
		},

		// 単位の正規化（面積、容量、重量の順）
		unitRules: []rewriteRule{
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ha|ヘクタール|ヘクター)`), "${1} ha"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:a|アール)`), "${1} a"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:㎡|平方メートル|平米)`), "${1} ㎡"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:L|リットル|ℓ)`), "${1} L"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ml|mL|ミリリットル)`), "${1} ml"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:cc)`), "${1} cc"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:kg|キログラム|キロ)`), "${1} kg"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:g|グラム)`), "${1} g"},
			{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:t|トン)`), "${1} t"},
		},

		// 時間表記の正規化
		timeRules: []rewriteRule{
			{regexp.MustCompile(`(\d{1,2})\s*時\s*(\d{1,2})\s*分`), "${1}:${2}"},
			{regexp.MustCompile(`(\d{1,2})\s*時`), "${1}:00"},
			{regexp.MustCompile(`午前\s*(\d{1,2}:\d{2})`), "${1} AM"},
			{regexp.MustCompile(`午後\s*(\d{1,2}:\d{2})`), "${1} PM"},
		},

		// 農薬希釈倍率の正規化
		dilutionRules: []rewriteRule{
			{regexp.MustCompile(`(\d+)\s*倍`), "${1}倍"},
			{regexp.MustCompile(`(\d+)\s*(?:倍希釈|倍に希釈)`), "${1}倍"},
			{regexp.MustCompile(`(\d+)\s*(?:分の1|/1)`), "${1}倍"},
		},

		// 圃場名の抽出パターン（宣言順に試す）
		fieldPatterns: []*regexp.Regexp{
			regexp.MustCompile(`([^\s]+(?:圃場|畑|ハウス|温室))`),
			regexp.MustCompile(`([A-Z]\d+)`), // F14, A1 などの形式
			regexp.MustCompile(`([^\s]+(?:家裏|家前|横|北|南|東|西))`), // 石谷さん横 などの形式
			regexp.MustCompile(`(鵡川[^\s]*)`),
			regexp.MustCompile(`(豊糠[^\s]*)`),
		},

		// 数量の抽出パターン
		quantityPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ha|ヘクタール|a|アール|㎡|平方メートル|平米)`),
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(L|リットル|ml|mL|ミリリットル|cc)`),
			regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|キログラム|キロ|g|グラム|t|トン)`),
			regexp.MustCompile(`(\d+)\s*(倍|倍希釈)`),
		},
	}
}

// interrogativeRe 疑問表現。圃場名の候補としては採用しない
var interrogativeRe = regexp.MustCompile(`どの|どこ|何|どう`)

// ============================================================================
// 用語の正規化
// ============================================================================

// normalizeAgainst 同義語が部分一致したら正準語を返す（大文字小文字は無視）
func normalizeAgainst(entries []synonymEntry, text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	for _, e := range entries {
		for _, syn := range e.synonyms {
			if strings.Contains(lower, syn) {
				return e.canonical
			}
		}
	}
	return text
}

// NormalizeCropName 作物名を正規化する。該当なしは入力をそのまま返す
func (g *Glossary) NormalizeCropName(text string) string {
	return normalizeAgainst(g.cropSynonyms, text)
}

// NormalizeTaskName 作業名を正規化する
func (g *Glossary) NormalizeTaskName(text string) string {
	return normalizeAgainst(g.taskSynonyms, text)
}

// NormalizeMaterialName 資材名を正規化する
func (g *Glossary) NormalizeMaterialName(text string) string {
	return normalizeAgainst(g.materialSynonyms, text)
}

// NormalizeStatus ステータス語を正規化する
func (g *Glossary) NormalizeStatus(text string) string {
	return normalizeAgainst(g.statusSynonyms, text)
}

// ============================================================================
// パターンによる書き換え
// ============================================================================

func applyRules(rules []rewriteRule, text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}

// NormalizeUnits 数量の単位表記を正準形に書き換える
func (g *Glossary) NormalizeUnits(text string) string {
	return applyRules(g.unitRules, text)
}

// NormalizeTime 時間表記を HH:MM 形式に書き換える
func (g *Glossary) NormalizeTime(text string) string {
	return applyRules(g.timeRules, text)
}

// NormalizeDilution 希釈倍率の表記を「N倍」に書き換える
func (g *Glossary) NormalizeDilution(text string) string {
	return applyRules(g.dilutionRules, text)
}

// ============================================================================
// 抽出
// ============================================================================

// ExtractFieldName テキストから圃場名を抽出する。見つからなければ空文字列
//
// パターンを宣言順に試し、最初に一致した候補を返す。
// 疑問表現（どの圃場 など）を含む候補は採用しない。
func (g *Glossary) ExtractFieldName(text string) string {
	for _, re := range g.fieldPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if interrogativeRe.MatchString(candidate) {
			continue
		}
		return candidate
	}
	return ""
}

// ExtractQuantities テキスト中の数量表現をすべて抽出する
//
// パターンごとに重複しない全一致を走査し、正規化済み表記を添えて返す。
func (g *Glossary) ExtractQuantities(text string) []model.Quantity {
	var quantities []model.Quantity

	for _, re := range g.quantityPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			quantities = append(quantities, model.Quantity{
				Value:      m[1],
				Unit:       m[2],
				Normalized: g.NormalizeUnits(m[0]),
			})
		}
	}
	return quantities
}

// ============================================================================
// 包括正規化と候補提示
// ============================================================================

// ComprehensiveNormalize 単位・時間・希釈の書き換え後、空白区切りの各トークンを
// 作物・作業・資材辞書で正規化し、表記が変わったものを全文置換する。
//
// トークン単位の置換なので、無関係な長いトークンの内部文字列を
// 書き換えてしまうことがある。これは既知の制限で、挙動として維持する。
func (g *Glossary) ComprehensiveNormalize(text string) string {
	normalized := strings.TrimSpace(text)

	normalized = g.NormalizeUnits(normalized)
	normalized = g.NormalizeTime(normalized)
	normalized = g.NormalizeDilution(normalized)

	for _, word := range strings.Fields(normalized) {
		if crop := g.NormalizeCropName(word); crop != word {
			normalized = strings.ReplaceAll(normalized, word, crop)
		}
		if task := g.NormalizeTaskName(word); task != word {
			normalized = strings.ReplaceAll(normalized, word, task)
		}
		if material := g.NormalizeMaterialName(word); material != word {
			normalized = strings.ReplaceAll(normalized, word, material)
		}
	}
	return normalized
}

// GetSuggestions 部分文字列に一致する用語の候補を返す（重複除去、辞書の宣言順）
func (g *Glossary) GetSuggestions(partial string) []string {
	partialLower := strings.ToLower(partial)

	var suggestions []string
	seen := make(map[string]bool)

	add := func(term string) {
		if !seen[term] {
			seen[term] = true
			suggestions = append(suggestions, term)
		}
	}
	matches := func(e synonymEntry) bool {
		if strings.Contains(strings.ToLower(e.canonical), partialLower) {
			return true
		}
		for _, syn := range e.synonyms {
			if strings.Contains(strings.ToLower(syn), partialLower) {
				return true
			}
		}
		return false
	}

	for _, e := range g.cropSynonyms {
		if matches(e) {
			add(e.canonical)
		}
	}
	for _, e := range g.taskSynonyms {
		if matches(e) {
			add(e.canonical)
		}
	}
	for _, e := range g.materialSynonyms {
		if matches(e) {
			add(e.canonical)
		}
	}
	return suggestions
}

// CanonicalTaskNames 正準作業名を宣言順で返す
func (g *Glossary) CanonicalTaskNames() []string {
	names := make([]string, len(g.taskSynonyms))
	for i, e := range g.taskSynonyms {
		names[i] = e.canonical
	}
	return names
}

// CanonicalCropNames 正準作物名を宣言順で返す
func (g *Glossary) CanonicalCropNames() []string {
	names := make([]string, len(g.cropSynonyms))
	for i, e := range g.cropSynonyms {
		names[i] = e.canonical
	}
	return names
}

// CropSynonyms 指定した正準作物名の同義語を返す（未知の名前は nil）
func (g *Glossary) CropSynonyms(canonical string) []string {
	for _, e := range g.cropSynonyms {
		if e.canonical == canonical {
			return e.synonyms
		}
	}
	return nil
}
