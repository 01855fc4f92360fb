package outputfmt

import (
	"encoding/json"
	"strings"
)

// FormatReplyText normalizes raw completion text for chat delivery. Models
// occasionally return a JSON string literal or text with escaped newlines;
// both forms are unwrapped before the reply is rendered.
func FormatReplyText(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if decoded, ok := decodeJSONStringLiteral(s); ok {
		s = strings.TrimSpace(decoded)
	}

	if shouldDecodeEscapedMultiline(s) {
		s = strings.TrimSpace(decodeEscapedMultiline(s))
	}
	return s
}

func decodeJSONStringLiteral(s string) (string, bool) {
	if len(s) < 2 || !strings.HasPrefix(s, "\"") || !strings.HasSuffix(s, "\"") {
		return "", false
	}
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return "", false
	}
	return out, true
}

func shouldDecodeEscapedMultiline(s string) bool {
	if !strings.Contains(s, `\`) {
		return false
	}
	escapedNewlines := strings.Count(s, `\n`) + strings.Count(s, `\r`)
	if escapedNewlines >= 2 && !strings.ContainsAny(s, "\n\r") {
		return true
	}
	if escapedNewlines >= 3 {
		return true
	}
	return false
}

func decodeEscapedMultiline(s string) string {
	replacer := strings.NewReplacer(
		`\r\n`, "\n",
		`\n`, "\n",
		`\r`, "\n",
	)
	return replacer.Replace(s)
}
