package whatsapp

import (
	"regexp"
	"strings"
)

var (
	bracketPattern = regexp.MustCompile(`【.*?】`)
	boldPattern    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	linkPattern    = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	controlPattern = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// FormatText rewrites assistant output into WhatsApp text conventions:
// source citation brackets are dropped, markdown bold becomes WhatsApp
// bold, links become "label: url", control characters are stripped.
func FormatText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(bracketPattern.ReplaceAllString(text, ""))
	text = boldPattern.ReplaceAllString(text, "*$1*")
	text = linkPattern.ReplaceAllString(text, "$1: $2")
	text = controlPattern.ReplaceAllString(text, "")
	return text
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#x60;",
)

// SanitizeInput escapes characters that could be abused downstream.
func SanitizeInput(text string) string {
	if text == "" {
		return ""
	}
	return htmlReplacer.Replace(text)
}

// IsValidPhoneNumber reports whether the number has 10 to 15 digits after
// stripping separators, the range for international numbers.
func IsValidPhoneNumber(number string) bool {
	if number == "" {
		return false
	}
	digits := 0
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10 && digits <= 15
}
