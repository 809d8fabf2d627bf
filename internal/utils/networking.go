package utils

import (
	"fmt"
	"math/rand/v2"
	"net/textproto"
	"slices"
	"strings"
)

func RandomUserAgent() string {
	// Chrome majors from roughly the last six months
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

var defaultHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// BuildFFmpegHeaders renders headers for the AVFormat "headers" option as
// sorted "Key: Value\r\n" lines. Keys are canonicalized, missing defaults are
// filled in and line breaks inside values are dropped.
func BuildFFmpegHeaders(base map[string]string) string {
	h := make(map[string]string, len(base)+len(defaultHeaders)+1)
	for k, v := range defaultHeaders {
		h[k] = v
	}
	for k, v := range base {
		k = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		h[k] = v
	}
	if h["User-Agent"] == "" {
		h["User-Agent"] = RandomUserAgent()
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	clean := strings.NewReplacer("\r", "", "\n", "")
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, strings.TrimSpace(clean.Replace(h[k])))
	}
	return b.String()
}
