// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はユーザーが入力した表示名からHTMLを除去する。
// 表示名はプロフィールAPI等でそのまま返却されるため、保存前に無害化する。
// GenerateSessionToken / TokenHasher はセッショントークンの生成と
// 永続化用ダイジェストの計算を行う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
// 表示名にマークアップは不要なため、許可タグなしのStrictPolicyを使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxSanitizePasses は多重にエンティティ化された入力を展開する上限回数。
const maxSanitizePasses = 4

// Sanitize はHTMLタグを除去した表示名を返す。
// エンティティ化されたタグ（&lt;script&gt; 等）も除去するため、
// 展開→除去→展開を出力が変化しなくなるまで繰り返す。
// 上限回数で収束しない場合は山括弧を取り除いて返す。
func (s *nameSanitizer) Sanitize(name string) string {
	current := strings.TrimSpace(name)
	for i := 0; i < maxSanitizePasses; i++ {
		next := s.pass(current)
		if next == current {
			return current
		}
		current = next
	}
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(current))
}

// pass は1回分の展開・除去を行う。
// bluemondayはエスケープ済み文字列を返すため、プレーンテキストに戻してから返す。
func (s *nameSanitizer) pass(name string) string {
	cleaned := s.policy.Sanitize(html.UnescapeString(name))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
