package paste

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// sentenceEnd matches text ending a sentence, allowing a closing quote and
// trailing whitespace after the terminator.
var sentenceEnd = regexp.MustCompile(`[.!?]["'”’]?\s*$`)

// properNouns keep their capital letter when continuing a sentence.
var properNouns = toSet(
	// pronoun
	"I", "I'm", "I'll", "I've", "I'd",
	// days
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	// months
	"January", "February", "March", "April", "May", "June", "July",
	"August", "September", "October", "November", "December",
	// companies, products, acronyms in mixed case
	"Google", "Apple", "Microsoft", "Amazon", "Facebook", "Meta", "Netflix",
	"Tesla", "Twitter", "YouTube", "GitHub", "GitLab", "OpenAI", "Anthropic",
	"Claude", "ChatGPT", "Gemini", "Slack", "Zoom", "Spotify", "Uber", "Nvidia",
	"Intel", "Linux", "Windows", "Mac", "macOS", "iPhone", "iPad", "iOS",
	"Android", "JavaScript", "TypeScript", "Python", "Kubernetes", "Docker",
	"PostgreSQL", "WhatsApp", "Telegram", "LinkedIn", "Reddit", "Wikipedia",
	"English", "Christmas", "Easter",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Formatter applies session-aware spacing and capitalization.
type Formatter struct {
	session *Session
	now     func() time.Time
}

// NewFormatter returns a formatter that reads session.
func NewFormatter(session *Session) *Formatter {
	return &Formatter{session: session, now: time.Now}
}

// Format formats text for pasting right now.
func (f *Formatter) Format(text string) string {
	return FormatText(text, f.session.Snapshot(), f.now())
}

// FormatText is the pure formatting rule. Outside a live session text is
// returned unchanged. Inside one, a single leading space is added and the
// first letter is lowercased when the previous paste did not end a sentence.
func FormatText(text string, snap Snapshot, now time.Time) string {
	if !snap.Live(now) {
		return text
	}
	body := strings.TrimLeftFunc(text, unicode.IsSpace)
	if body == "" {
		return text
	}
	if !sentenceEnd.MatchString(snap.LastText) && !keepsCapital(body) {
		body = lowerFirst(body)
	}
	return " " + body
}

func keepsCapital(text string) bool {
	r, _ := utf8.DecodeRuneInString(text)
	if isQuote(r) {
		return true
	}
	word := firstWord(text)
	if word == "" {
		return false
	}
	if properNouns[word] {
		return true
	}
	return isAcronym(word)
}

// firstWord returns the leading word with trailing punctuation and a
// possessive suffix removed. Curly apostrophes are normalized.
func firstWord(text string) string {
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}
	word := strings.ReplaceAll(text[:end], "’", "'")
	word = strings.TrimRightFunc(word, func(r rune) bool {
		return unicode.IsPunct(r) && r != '\''
	})
	if !properNouns[word] {
		word = strings.TrimSuffix(word, "'s")
	}
	return strings.TrimRight(word, "'")
}

func isAcronym(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 1
}

func isQuote(r rune) bool {
	switch r {
	case '"', '\'', '“', '”', '‘', '’', '«', '„':
		return true
	}
	return false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if !unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
