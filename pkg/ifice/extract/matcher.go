package extract

import "github.com/cognicore/ifice/pkg/ifice/ingest"

// Kind tells what a dictionary term names.
type Kind int

const (
	KindIndustry Kind = iota
	KindProvince
	KindCity
	KindDistrict
)

// Entry is one meaning of a dictionary term. A term such as 北京 may carry
// several entries (a province alias and a city of the same region).
type Entry struct {
	Kind Kind
	Code string
	City string // district entries only: the parent city
}

// Match is one recognized term in a scanned text.
type Match struct {
	Term    string
	Pos     int // rune offset
	Entries []Entry
}

// Matcher recognizes dictionary terms with greedy leftmost-longest scanning
// over runes, so overlapping terms never both fire (浙江西湖 yields 浙江, not 江西).
type Matcher struct {
	dict   map[string][]Entry
	maxLen int
}

func newMatcher() *Matcher {
	return &Matcher{dict: make(map[string][]Entry), maxLen: 1}
}

// add registers a term. Terms are normalized the same way scanned text is.
func (m *Matcher) add(term string, e Entry) {
	term = ingest.Normalize(term)
	if term == "" {
		return
	}
	for _, existing := range m.dict[term] {
		if existing == e {
			return
		}
	}
	m.dict[term] = append(m.dict[term], e)
	if l := ingest.RuneLen(term); l > m.maxLen {
		m.maxLen = l
	}
}

// Scan returns the matches in text from left to right. text must already be
// normalized.
func (m *Matcher) Scan(text string) []Match {
	runes := []rune(text)
	var out []Match
	i := 0
	for i < len(runes) {
		maxPhrase := m.maxLen
		if remaining := len(runes) - i; maxPhrase > remaining {
			maxPhrase = remaining
		}
		matched := 0
		for n := maxPhrase; n >= 1; n-- {
			term := string(runes[i : i+n])
			if entries, ok := m.dict[term]; ok {
				out = append(out, Match{Term: term, Pos: i, Entries: entries})
				matched = n
				break
			}
		}
		if matched > 0 {
			i += matched
		} else {
			i++
		}
	}
	return out
}

// Len returns the number of distinct terms.
func (m *Matcher) Len() int {
	return len(m.dict)
}
