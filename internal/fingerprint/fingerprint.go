// Package fingerprint canonicalizes source URLs and derives stable,
// content-addressed post identifiers.
//
// Canonicalization lowercases scheme/host, strips default ports, drops the
// fragment, and additionally normalizes trailing slashes and strips known
// tracking query parameters.
package fingerprint

import (
	"net/url"
	"sort"
	"strings"

	"github.com/blogwatch/ingestor/internal/hash/sha256"
)

// trackingPrefixes names query parameter prefixes stripped during canonicalization.
var trackingPrefixes = []string{"utm_"}

// trackingExact names exact query parameter keys stripped during canonicalization.
var trackingExact = map[string]struct{}{
	"gclid": {},
	"fbclid": {},
}

// Canonicalize normalizes rawURL: lowercase scheme/host, strip default
// ports, strip a trailing slash from the path (except root), strip the
// fragment, and drop tracking query parameters.
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(u)) == Canonicalize(u).
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, exact := trackingExact[lower]; exact {
			q.Del(key)
			continue
		}
		for _, prefix := range trackingPrefixes {
			if strings.HasPrefix(lower, prefix) {
				q.Del(key)
				break
			}
		}
	}
	u.RawQuery = encodeSorted(q)

	return u.String(), nil
}

// encodeSorted mirrors url.Values.Encode but is kept local so behavior is
// pinned regardless of stdlib internals: keys sorted, values in original order.
func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Derive computes the stable, content-addressed fingerprint for a post seen
// under sourceName at rawURL. Title is deliberately excluded from the input
// so upstream title edits never create duplicate fingerprints.
func Derive(sourceName, rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	input := make([]byte, 0, len(sourceName)+1+len(canonical))
	input = append(input, sourceName...)
	input = append(input, 0x1f)
	input = append(input, canonical...)
	return sha256.New().Hash(input)
}
