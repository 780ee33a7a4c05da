// Package nlp 用語辞書と正規化のテスト
package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 用語の正規化
// ============================================================================

// TestGlossary_NormalizeCropName 作物名の同義語が正準語に揃うこと
func TestGlossary_NormalizeCropName(t *testing.T) {
	g := NewGlossary()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"ひらがな表記", "だいず", "大豆"},
		{"カタカナ表記", "ダイズ", "大豆"},
		{"英語表記", "soybean", "大豆"},
		{"英語は大文字小文字を無視", "Soybean", "大豆"},
		{"長音の揺れ", "ブロッコリ", "ブロッコリー"},
		{"漢字表記", "胡瓜", "きゅうり"},
		{"正準語はそのまま", "大豆", "大豆"},
		{"未知語はそのまま", "りんご", "りんご"},
		{"前後の空白は無視", "  だいず  ", "大豆"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.NormalizeCropName(tt.input))
		})
	}
}

// TestGlossary_NormalizeTaskName 作業名の同義語が正準語に揃うこと
func TestGlossary_NormalizeTaskName(t *testing.T) {
	g := NewGlossary()

	assert.Equal(t, "播種", g.NormalizeTaskName("種まき"))
	assert.Equal(t, "防除", g.NormalizeTaskName("農薬散布"))
	assert.Equal(t, "灌水", g.NormalizeTaskName("水やり"))
	assert.Equal(t, "定植", g.NormalizeTaskName("植え付け"))

	// 該当なしは入力をそのまま返す（エラーにしない）
	assert.Equal(t, "収穫", g.NormalizeTaskName("収穫"))
	assert.Equal(t, "昼休み", g.NormalizeTaskName("昼休み"))
}

// TestGlossary_NormalizeStatus ステータス語の正規化
func TestGlossary_NormalizeStatus(t *testing.T) {
	g := NewGlossary()

	assert.Equal(t, "完了", g.NormalizeStatus("終了"))
	assert.Equal(t, "完了", g.NormalizeStatus("done"))
	assert.Equal(t, "未完了", g.NormalizeStatus("未着手"))
	assert.Equal(t, "進行中", g.NormalizeStatus("作業中"))
}

// ============================================================================
// 表記の書き換え
// ============================================================================

// TestGlossary_NormalizeUnits 単位表記が正準形に書き換わること
func TestGlossary_NormalizeUnits(t *testing.T) {
	g := NewGlossary()

	tests := []struct {
		input string
		want  string
	}{
		{"5ヘクタール", "5 ha"},
		{"3.5ha", "3.5 ha"},
		{"2アール", "2 a"},
		{"200リットル", "200 L"},
		{"500ml", "500 ml"},
		{"10キロ", "10 kg"},
		{"1.5トン", "1.5 t"},
		{"単位なしの文", "単位なしの文"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.NormalizeUnits(tt.input), "input=%s", tt.input)
	}
}

// TestGlossary_NormalizeTime 時間表記が HH:MM 形式に揃うこと
func TestGlossary_NormalizeTime(t *testing.T) {
	g := NewGlossary()

	assert.Equal(t, "9:30", g.NormalizeTime("9時30分"))
	assert.Equal(t, "14:00", g.NormalizeTime("14時"))
	assert.Equal(t, "9:00 AM", g.NormalizeTime("午前9時"))
	assert.Equal(t, "3:00 PM", g.NormalizeTime("午後3時"))
}

// TestGlossary_NormalizeDilution 希釈倍率の表記が「N倍」に揃うこと
func TestGlossary_NormalizeDilution(t *testing.T) {
	g := NewGlossary()

	assert.Equal(t, "1000倍", g.NormalizeDilution("1000倍希釈"))
	assert.Equal(t, "500倍", g.NormalizeDilution("500倍に希釈"))
	assert.Equal(t, "1000倍", g.NormalizeDilution("1000倍"))
}

// ============================================================================
// 抽出
// ============================================================================

// TestGlossary_ExtractFieldName 圃場名の抽出と疑問表現の除外
func TestGlossary_ExtractFieldName(t *testing.T) {
	g := NewGlossary()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"接尾辞形式", "橋向こう圃場で作業した", "橋向こう圃場"},
		{"コード形式", "F14で防除をやった", "F14"},
		{"位置表現形式", "石谷さん横で収穫した", "石谷さん横"},
		{"地名形式", "鵡川第一で作業", "鵡川第一で作業"},
		{"疑問表現は採用しない", "どの圃場ですか", ""},
		{"該当なしは空", "作業を終えました", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.ExtractFieldName(tt.input))
		})
	}
}

// TestGlossary_ExtractQuantities 数量表現の抽出と正規化
func TestGlossary_ExtractQuantities(t *testing.T) {
	g := NewGlossary()

	quantities := g.ExtractQuantities("5.2ヘクタールに200リットル散布")
	require.Len(t, quantities, 2)

	// 面積 → 容量のパターン順で返る
	assert.Equal(t, "5.2", quantities[0].Value)
	assert.Equal(t, "ヘクタール", quantities[0].Unit)
	assert.Equal(t, "5.2 ha", quantities[0].Normalized)
	assert.Equal(t, "200 L", quantities[1].Normalized)

	dilution := g.ExtractQuantities("1000倍で散布した")
	require.Len(t, dilution, 1)
	assert.Equal(t, "1000倍", dilution[0].Normalized)

	assert.Empty(t, g.ExtractQuantities("数量の出てこない文"))
}

// ============================================================================
// 包括正規化と候補提示
// ============================================================================

// TestGlossary_ComprehensiveNormalize 一括正規化の基本動作
func TestGlossary_ComprehensiveNormalize(t *testing.T) {
	g := NewGlossary()

	assert.Equal(t, "播種 完了", g.ComprehensiveNormalize("種まき 完了"))
	assert.Equal(t, "大豆 を 収穫", g.ComprehensiveNormalize("ダイズ を 収穫"))

	// トークン単位の置換なので、空白を含まない長い文は
	// トークンごと正準語に置き換わる（既知の制限）
	assert.Equal(t, "大豆", g.ComprehensiveNormalize("だいずの播種"))
}

// TestGlossary_ComprehensiveNormalize_Idempotent 正規化済みテキストの再正規化は無変化
func TestGlossary_ComprehensiveNormalize_Idempotent(t *testing.T) {
	g := NewGlossary()

	inputs := []string{
		"種まき 完了",
		"ダイズ を 収穫",
		"トマトの防除を5ヘクタール実施",
		"F14で大豆の防除を完了しました。クプロシールドを1000倍希釈で散布。9:00から11:30まで作業。",
	}
	for _, input := range inputs {
		once := g.ComprehensiveNormalize(input)
		twice := g.ComprehensiveNormalize(once)
		assert.Equal(t, once, twice, "input=%s", input)
	}
}

// TestGlossary_GetSuggestions 候補提示の順序と重複除去
func TestGlossary_GetSuggestions(t *testing.T) {
	g := NewGlossary()

	// 作物 → 作業 → 資材の辞書順で返る
	assert.Equal(t, []string{"播種", "種子", "苗"}, g.GetSuggestions("seed"))

	// 複数の同義語が同じ正準語を指しても 1 回だけ
	assert.Equal(t, []string{"播種"}, g.GetSuggestions("まき"))

	assert.Empty(t, g.GetSuggestions("該当なし"))
}
