package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"to": {}, "in": {}, "on": {}, "of": {}, "for": {}, "at": {},
	"by": {}, "with": {}, "from": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "has": {}, "have": {}, "had": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "after": {}, "over": {},
	"says": {}, "said": {}, "will": {}, "into": {}, "about": {}, "than": {},
}

// CleanText decodes HTML entities, drops punctuation and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// ExtractKeywords returns the most frequent words that are not stop-words.
// Ties are broken alphabetically.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for word := range freq {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] == freq[words[j]] {
			return words[i] < words[j]
		}
		return freq[words[i]] > freq[words[j]]
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// CanonicalURL lowercases scheme and host and strips query and fragment so the
// same article reached through tracking links maps to one key.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// BuildArticleID hashes the canonical article URL into a stable document ID.
// An empty URL yields an empty ID.
func BuildArticleID(articleURL string) string {
	key := CanonicalURL(articleURL)
	if key == "" {
		return ""
	}
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}
