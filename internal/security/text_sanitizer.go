// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は商品情報の入力値と生成された説明文からHTMLを取り除き、
// UIに表示しても安全なプレーンテキストにする。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去し、実体参照を元の文字に戻したテキストを返す。
	// script, styleの中身は本文ごと除去される。改行は保持する。
	Sanitize(s string) string
	// SanitizeField はSanitizeに加えて制御文字と前後の空白を除去し、
	// maxRunes文字で切り詰める。maxRunesが0以下なら切り詰めない。
	SanitizeField(s string, maxRunes int) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	// StrictPolicyは&や<をエスケープして返すため、プレーンテキストに戻す
	return html.UnescapeString(s.policy.Sanitize(text))
}

// SanitizeField は1行の入力項目向けにSanitizeを適用する。
func (s *textSanitizer) SanitizeField(text string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s.Sanitize(text))
	cleaned = strings.TrimSpace(cleaned)

	if maxRunes > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}
