// Package tools holds the JSON messages of the backend's utility endpoints
// (QR codes, URL shortening, text masking) and the masking rules they share.
package tools

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type QRCodeRequest struct {
	Content string `json:"content" jsonschema:"minLength=1"`
}

// QRCodeResponse carries the PNG as a data URI.
type QRCodeResponse struct {
	Success bool   `json:"success,omitempty"`
	Image   string `json:"image,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ShortenRequest struct {
	URL string `json:"url" jsonschema:"minLength=1"`
}

type ShortenResponse struct {
	Success  bool   `json:"success,omitempty"`
	Original string `json:"original,omitempty"`
	Short    string `json:"short,omitempty"`
	Error    string `json:"error,omitempty"`
}

type MaskRequest struct {
	Text string `json:"text" jsonschema:"minLength=1"`
	// Patterns selects rules by name; empty means all of them.
	Patterns []string `json:"patterns,omitempty" jsonschema:"enum=email,enum=phone,enum=id,enum=credit_card"`
	MaskChar string   `json:"mask_char,omitempty"`
}

type MaskedItem struct {
	Type     string `json:"type"`
	Original string `json:"original"`
	Masked   string `json:"masked"`
}

type MaskResponse struct {
	Success  bool         `json:"success,omitempty"`
	Original string       `json:"original,omitempty"`
	Masked   string       `json:"masked,omitempty"`
	Items    []MaskedItem `json:"items,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// DefaultMaskChar replaces every character of a match.
const DefaultMaskChar = "*"

type maskRule struct {
	name string
	re   *regexp.Regexp
}

// Rules are applied in this order.
var maskRules = []maskRule{
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\b0\d{1,2}[-\s]?\d{3,4}[-\s]?\d{3,4}\b`)},
	{"id", regexp.MustCompile(`\b[A-Z][12]\d{8}\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
}

// PatternNames lists the masking rules in application order.
func PatternNames() []string {
	names := make([]string, len(maskRules))
	for i, r := range maskRules {
		names[i] = r.name
	}
	return names
}

// KnownPattern reports whether name selects a masking rule.
func KnownPattern(name string) bool {
	for _, r := range maskRules {
		if r.name == name {
			return true
		}
	}
	return false
}

// Mask replaces every match of the selected rules with maskChar repeated
// once per character. Unknown names are skipped.
func Mask(text string, patterns []string, maskChar string) (string, []MaskedItem) {
	if maskChar == "" {
		maskChar = DefaultMaskChar
	}
	selected := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		selected[p] = true
	}

	out := text
	var items []MaskedItem
	for _, r := range maskRules {
		if len(selected) > 0 && !selected[r.name] {
			continue
		}
		for _, m := range r.re.FindAllString(out, -1) {
			masked := strings.Repeat(maskChar, utf8.RuneCountInString(m))
			out = strings.ReplaceAll(out, m, masked)
			items = append(items, MaskedItem{Type: r.name, Original: m, Masked: masked})
		}
	}
	return out, items
}
