package collect

import (
	"fmt"
	"strings"
)

// SearchURL is the result page of term on host, e.g. https://www.bing.com/jobs?q=Test%20Job&form=JOBL2S
func SearchURL(host, term string) string {
	return fmt.Sprintf("https://%s/jobs?q=%s&form=JOBL2S", host, quote(term))
}

// FileName is the output file of term, e.g. test_job_jobs.csv
func FileName(term string) string {
	return strings.ToLower(strings.ReplaceAll(term, " ", "_")) + "_jobs.csv"
}

// quote percent-encodes every byte except unreserved characters and '/', so spaces
// become %20 rather than '+'.
func quote(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}
