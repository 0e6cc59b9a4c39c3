// Package locator finds login-form elements in a rendered page. Pages from
// the portal come in several layouts, so each semantic role carries an
// ordered list of strategies: stable known identifiers first, semantic
// name/type attributes next, generic input types last. The first strategy
// that matches wins; no match is not an error, the caller decides.
package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Role is the semantic part of the login form being located.
type Role string

const (
	RoleUsername Role = "username"
	RolePassword Role = "password"
	RoleSubmit   Role = "submit"
)

// Match is a located element expressed as a CSS selector usable against the
// live page. Strategy names the rule that produced it, for logging.
type Match struct {
	Selector string
	Strategy string
}

// Strategy is one prioritized selector rule. The order of a role's strategy
// slice IS the priority policy, kept as data so it stays testable.
type Strategy struct {
	Name     string
	Selector string
}

var usernameStrategies = []Strategy{
	{Name: "known-id", Selector: "input#signInName, input#user_email, input#username"},
	{Name: "name-attr", Selector: "input[name='username'], input[name='email'], input[name='loginfmt'], input[name='user']"},
	// hint-text predicate runs between name-attr and input-type, see Locate.
	{Name: "input-type", Selector: "input[type='email'], input[type='text']"},
}

var passwordStrategies = []Strategy{
	{Name: "known-id", Selector: "input#password, input#user_password"},
	{Name: "name-attr", Selector: "input[name='password'], input[name='passwd'], input[name='pass']"},
	{Name: "input-type", Selector: "input[type='password']"},
}

var submitStrategies = []Strategy{
	{Name: "known-id", Selector: "button#next, button#continue, button#sign-in-button"},
	{Name: "submit-type", Selector: "button[type='submit'], input[type='submit']"},
	// text-content fallback runs last, see Locate.
}

// usernameHint matches placeholder/name/id values that identify a login field
// across the portal's layout variants.
var usernameHint = regexp.MustCompile(`(?i)email|user|login`)

// submitTexts are case-insensitive substrings accepted by the submit
// text-content fallback.
var submitTexts = []string{"sign", "login", "next", "continue"}

// Locate finds the best element for role in doc. It returns false when no
// strategy matched anything.
func Locate(doc *goquery.Document, role Role) (Match, bool) {
	switch role {
	case RoleUsername:
		if m, ok := bySelector(doc, usernameStrategies[:2]); ok {
			return m, true
		}
		if m, ok := byUsernameHint(doc); ok {
			return m, true
		}
		return bySelector(doc, usernameStrategies[2:])
	case RolePassword:
		return bySelector(doc, passwordStrategies)
	case RoleSubmit:
		if m, ok := bySelector(doc, submitStrategies); ok {
			return m, true
		}
		return bySubmitText(doc)
	}
	return Match{}, false
}

func bySelector(doc *goquery.Document, strategies []Strategy) (Match, bool) {
	for _, st := range strategies {
		if doc.Find(st.Selector).Length() > 0 {
			// The comma-list selector preserves first-match semantics when
			// replayed against the live page.
			return Match{Selector: st.Selector, Strategy: st.Name}, true
		}
	}
	return Match{}, false
}

// byUsernameHint scans visible text-like inputs for login hints in their
// placeholder, name or id, the way the portal's older layouts require.
func byUsernameHint(doc *goquery.Document) (Match, bool) {
	var found *goquery.Selection
	doc.Find("input").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ := strings.ToLower(s.AttrOr("type", "text"))
		switch typ {
		case "hidden", "password", "submit", "button", "checkbox", "radio":
			return true
		}
		hint := s.AttrOr("placeholder", "") + " " + s.AttrOr("name", "") + " " + s.AttrOr("id", "")
		if usernameHint.MatchString(hint) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return Match{}, false
	}
	return Match{Selector: cssPath(found), Strategy: "hint-text"}, true
}

// bySubmitText searches button-like elements for known action words in their
// visible text, value or aria-label.
func bySubmitText(doc *goquery.Document) (Match, bool) {
	var found *goquery.Selection
	doc.Find("button, input[type='button'], a[role='button'], [role='button']").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			if text == "" {
				text = strings.ToLower(s.AttrOr("value", ""))
			}
			if text == "" {
				text = strings.ToLower(s.AttrOr("aria-label", ""))
			}
			for _, want := range submitTexts {
				if strings.Contains(text, want) {
					found = s
					return false
				}
			}
			return true
		})
	if found == nil {
		return Match{}, false
	}
	return Match{Selector: cssPath(found), Strategy: "text-content"}, true
}

// cssPath synthesizes a selector for a predicate-matched node: id when it has
// a usable one, name attribute next, otherwise an nth-child ancestor chain.
func cssPath(s *goquery.Selection) string {
	if id := s.AttrOr("id", ""); validIdent(id) {
		return "#" + id
	}
	if name := s.AttrOr("name", ""); validIdent(name) {
		return fmt.Sprintf("%s[name='%s']", goquery.NodeName(s), name)
	}

	var segments []string
	cur := s
	for cur.Length() > 0 {
		node := goquery.NodeName(cur)
		if node == "body" || node == "html" || node == "#document" {
			segments = append([]string{"body"}, segments...)
			break
		}
		idx := cur.PrevAll().Length() + 1
		segments = append([]string{fmt.Sprintf("%s:nth-child(%d)", node, idx)}, segments...)
		cur = cur.Parent()
	}
	return strings.Join(segments, " > ")
}

func validIdent(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_'
		if !ok {
			return false
		}
	}
	return true
}
