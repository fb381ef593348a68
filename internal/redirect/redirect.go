package redirect

import (
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Bing wraps outbound links as https://www.bing.com/ck/a?...&u=a1<base64 of the target>&...
const (
	param  = "u"
	prefix = "a1"
)

// base64url characters and the space a query decoder makes out of '+' are mapped back to
// the standard alphabet before decoding.
var alphabet = strings.NewReplacer("-", "+", "_", "/", " ", "+")

// RealURL returns the destination embedded in a search engine redirect URL. The redirect
// URL itself is returned whenever there is no embedded destination or it can't be decoded.
func RealURL(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return redirectURL
	}

	values := u.Query()[param]
	if len(values) == 0 || values[0] == "" {
		return redirectURL
	}

	encoded := strings.TrimPrefix(values[0], prefix)
	if missing := len(encoded) % 4; missing != 0 {
		encoded += strings.Repeat("=", 4-missing)
	}

	decoded, err := base64.StdEncoding.DecodeString(alphabet.Replace(encoded))
	if err != nil || !utf8.Valid(decoded) {
		return redirectURL
	}
	return string(decoded)
}
