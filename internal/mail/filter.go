package mail

import (
	"strings"
	"unicode"
)

// Criteria is the server-side half of a filter: header substring predicates
// that are safe to put into an IMAP SEARCH command. Every value is plain
// ASCII; the unread restriction is always implied and added by the session.
type Criteria struct {
	Header map[string]string
}

// Filter splits the configured sender/subject substrings into server-side
// search criteria and a client-side residual predicate.
//
// IMAP SEARCH arguments must be ASCII; sending a Japanese subject filter
// raises a protocol error on common servers. Any term that is not fully
// ASCII is therefore kept out of the SEARCH command and applied here after
// fetch instead, so non-Latin filters still narrow the result set.
type Filter struct {
	from    string
	subject string

	serverFrom    bool
	serverSubject bool
}

// NewFilter builds a filter from the configured substrings. Empty strings
// disable the corresponding predicate.
func NewFilter(from, subject string) *Filter {
	from = strings.TrimSpace(from)
	subject = strings.TrimSpace(subject)

	return &Filter{
		from:          from,
		subject:       subject,
		serverFrom:    from != "" && isASCII(from),
		serverSubject: subject != "" && isASCII(subject),
	}
}

// ServerCriteria returns the predicates that may be sent to the server.
// With no usable filter configured the criteria is empty and the search
// reduces to "unread only".
func (f *Filter) ServerCriteria() Criteria {
	c := Criteria{Header: make(map[string]string)}
	if f.serverFrom {
		c.Header["From"] = f.from
	}
	if f.serverSubject {
		c.Header["Subject"] = f.subject
	}
	return c
}

// Matches applies the residual predicate: the filter terms that could not be
// expressed server-side. Terms already enforced by ServerCriteria are not
// re-checked. With nothing residual it always returns true.
func (f *Filter) Matches(msg *Message) bool {
	if f.from != "" && !f.serverFrom {
		if !strings.Contains(strings.ToLower(msg.From), strings.ToLower(f.from)) {
			return false
		}
	}
	if f.subject != "" && !f.serverSubject {
		if !strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(f.subject)) {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
