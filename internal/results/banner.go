package results

import (
	"strconv"
	"strings"
)

// MaxBannerLength caps stored banner text, in characters.
const MaxBannerLength = 100

// SanitizeBanner truncates a banner and reduces it to printable ASCII so it
// can be embedded in JSON and log lines unescaped. Double quotes become single
// quotes; backslashes and every other character become spaces.
func SanitizeBanner(banner string) string {
	var b strings.Builder
	b.Grow(min(len(banner), MaxBannerLength))

	n := 0
	for _, r := range banner {
		if n == MaxBannerLength {
			break
		}
		n++
		switch {
		case r == '"':
			b.WriteByte('\'')
		case r == '\\':
			b.WriteByte(' ')
		case r >= 32 && r <= 126:
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// FormatBanner renders the stored "port: banner" form.
func FormatBanner(port uint16, banner string) string {
	return strconv.Itoa(int(port)) + ": " + SanitizeBanner(banner)
}
