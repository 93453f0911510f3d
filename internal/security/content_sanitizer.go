// Package security はプロバイダー応答の取り扱いに関するセキュリティ機能を提供する。
//
// ContentSanitizer は投稿本文のHTMLをキャプション用のプレーンテキストに変換する。
// bluemondayのStrictPolicyで全タグを除去するため、script や style の中身も残らない。
package security

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// lineBreakPattern は改行として扱うタグ。タグ除去の前に改行へ置換する。
var lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|h[1-6]|blockquote)\s*>`)

// ContentSanitizer はHTMLをプレーンテキストに変換する。スレッドセーフ。
type ContentSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewContentSanitizer はContentSanitizerを生成する。
// maxRunesが正の場合、結果をその文字数で切り詰めて末尾に "…" を付ける。
func NewContentSanitizer(maxRunes int) *ContentSanitizer {
	return &ContentSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// PlainText はHTMLからタグを除去し、実体参照を復元したテキストを返す。
// 各行の前後の空白を除去し、連続する空行は1行にまとめる。
// 空文字列の入力には空文字列を返す。
func (s *ContentSanitizer) PlainText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	withBreaks := lineBreakPattern.ReplaceAllString(rawHTML, "\n")
	text := html.UnescapeString(s.policy.Sanitize(withBreaks))

	var lines []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		blank = false
		lines = append(lines, line)
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))

	if s.maxRunes > 0 && utf8.RuneCountInString(out) > s.maxRunes {
		runes := []rune(out)
		out = string(runes[:s.maxRunes]) + "…"
	}
	return out
}
