// Package security はユーザー入力の無害化を提供する。
//
// デバイス名・アカウント名のような表示用文字列はプレーンテキストとして保存し、
// フロントエンドでそのまま描画されてもマークアップとして解釈されないようにする。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は表示名からHTMLを取り除くインターフェース。
type TextSanitizer interface {
	// Sanitize はすべてのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// script, styleタグは中身ごと除去される。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はマークアップを除去する。
// StrictPolicyは残したテキストをHTMLエスケープして返すため、保存用に元へ戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
