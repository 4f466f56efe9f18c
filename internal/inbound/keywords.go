// Package inbound turns customer replies such as STOP or START into consent updates.
package inbound

import (
	"strings"
	"unicode"

	"github.com/itsfredrick/vayva-platform-sub007/internal/consent/domain"
)

// Keyword is the consent action an inbound message asks for.
type Keyword string

const (
	KeywordOptOut  Keyword = "OPT_OUT"
	KeywordBlock   Keyword = "BLOCK"
	KeywordUnblock Keyword = "UNBLOCK"
	KeywordOptIn   Keyword = "OPT_IN"
)

// optInSourceKeyword is stored as marketingOptInSource for keyword opt-ins.
const optInSourceKeyword = "keyword_reply"

// keywords maps a normalized message body to its action. Only whole-message matches count.
var keywords = map[string]Keyword{
	"STOP":        KeywordOptOut,
	"UNSUBSCRIBE": KeywordOptOut,
	"OPTOUT":      KeywordOptOut,
	"OPT OUT":     KeywordOptOut,
	"CANCEL":      KeywordOptOut,
	"END":         KeywordOptOut,
	"QUIT":        KeywordOptOut,

	"STOP ALL": KeywordBlock,
	"STOPALL":  KeywordBlock,
	"BLOCK":    KeywordBlock,

	"START":   KeywordUnblock,
	"UNSTOP":  KeywordUnblock,
	"UNBLOCK": KeywordUnblock,

	"SUBSCRIBE": KeywordOptIn,
	"OPTIN":     KeywordOptIn,
	"OPT IN":    KeywordOptIn,
}

// ParseKeyword returns the action of body, or false if body is not a recognized keyword.
// Case, surrounding whitespace and trailing punctuation are ignored.
func ParseKeyword(body string) (Keyword, bool) {
	k, ok := keywords[normalizeBody(body)]
	return k, ok
}

// Patch returns the consent change for k.
func (k Keyword) Patch() domain.Patch {
	switch k {
	case KeywordOptOut:
		return domain.Patch{MarketingOptIn: domain.Bool(false)}
	case KeywordBlock:
		return domain.Patch{FullyBlocked: domain.Bool(true)}
	case KeywordUnblock:
		return domain.Patch{FullyBlocked: domain.Bool(false)}
	case KeywordOptIn:
		return domain.Patch{MarketingOptIn: domain.Bool(true), MarketingOptInSource: domain.String(optInSourceKeyword)}
	}
	return domain.Patch{}
}

func normalizeBody(body string) string {
	body = strings.TrimFunc(body, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return strings.ToUpper(strings.Join(strings.Fields(body), " "))
}
