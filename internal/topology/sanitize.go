package topology

import "strings"

// SanitizeID maps s to a diagram identifier by replacing every character
// outside [A-Za-z0-9_] with '_'. Distinct inputs may map to the same id
// ("a.b" and "a_b"); callers that need uniqueness must check for it.
func SanitizeID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// The replacer works in a single pass, so the '#' of an emitted entity code
// is never escaped a second time.
var labelEscaper = strings.NewReplacer(
	"#", "#35;",
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
	"[", "#91;",
	"]", "#93;",
	"{", "#123;",
	"}", "#125;",
	"|", "#124;",
	"(", "#40;",
	")", "#41;",
)

// SanitizeLabel escapes characters that are reserved in Mermaid label text.
func SanitizeLabel(s string) string {
	return labelEscaper.Replace(s)
}
