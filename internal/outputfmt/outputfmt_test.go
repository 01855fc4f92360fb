package outputfmt

import "testing"

func TestFormatReplyText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text passes through", in: "hello there", want: "hello there"},
		{name: "whitespace trimmed", in: "  hi \n", want: "hi"},
		{name: "json string literal unwrapped", in: `"line one\nline two"`, want: "line one\nline two"},
		{name: "escaped multiline decoded", in: `a\nb\nc`, want: "a\nb\nc"},
		{name: "single escape left alone", in: `path\name`, want: `path\name`},
		{name: "real newlines not re-decoded", in: "a\nb \\n c", want: "a\nb \\n c"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatReplyText(tc.in); got != tc.want {
				t.Fatalf("FormatReplyText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeJSONStringLiteral(t *testing.T) {
	t.Parallel()

	if got, ok := decodeJSONStringLiteral(`"quoted"`); !ok || got != "quoted" {
		t.Fatalf("decodeJSONStringLiteral() = %q, %v", got, ok)
	}
	if _, ok := decodeJSONStringLiteral(`"unterminated`); ok {
		t.Fatalf("expected invalid literal to be rejected")
	}
	if _, ok := decodeJSONStringLiteral("bare"); ok {
		t.Fatalf("expected non-quoted text to be rejected")
	}
}
