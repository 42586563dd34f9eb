package ledger

import (
	"strings"
	"unicode"
)

// searchPunctuation is stripped from both query tokens and the haystack for multi-word queries.
const searchPunctuation = "-_./\\,:;#()[]"

// Query is a parsed free-text search.
type Query struct {
	raw    string
	tokens []string
}

// NewQuery parses q. An empty query matches everything.
func NewQuery(q string) Query {
	q = strings.ToLower(strings.TrimSpace(q))
	query := Query{raw: q}
	fields := strings.Fields(q)
	if len(fields) > 1 {
		for _, f := range fields {
			if tok := stripPunctuation(f); tok != "" {
				query.tokens = append(query.tokens, tok)
			}
		}
	}
	return query
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool {
	return q.raw == ""
}

// Match reports whether the concatenated fields satisfy the query. Multi-word
// queries need every token present; a single word is a plain substring match.
func (q Query) Match(fields ...string) bool {
	if q.Empty() {
		return true
	}
	hay := haystack(fields)
	if len(q.tokens) == 0 {
		if strings.Contains(q.raw, " ") {
			// Only punctuation between the words.
			return true
		}
		return strings.Contains(hay, q.raw)
	}
	hay = stripPunctuation(hay)
	for _, tok := range q.tokens {
		if !strings.Contains(hay, tok) {
			return false
		}
	}
	return true
}

// MatchGroup matches a grouped row on its representative transaction.
func (q Query) MatchGroup(p *DateParser, g GroupedPart) bool {
	r := g.Representative
	return q.Match(g.PartNumber, r.Description, r.Subinventory, p.Format(r.RawDate))
}

func haystack(fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		for _, r := range f {
			if !unicode.IsSpace(r) {
				b.WriteRune(unicode.ToLower(r))
			}
		}
	}
	return b.String()
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(searchPunctuation, r) {
			return -1
		}
		return r
	}, s)
}
