package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Attempt is a single selector tried by a Rule. When Attr is empty the
// element text is read, otherwise the named attribute.
type Attempt struct {
	Selector string `json:"selector" yaml:"selector"`
	Attr     string `json:"attr,omitempty" yaml:"attr,omitempty"`
}

// Rule is an ordered list of attempts. Later attempts are only evaluated when
// the earlier ones match nothing.
type Rule []Attempt

// find runs the attempt's selector below root. Selectors that fail to compile
// match nothing.
func (a Attempt) find(root *goquery.Selection) *goquery.Selection {
	compiled, err := cascadia.Compile(a.Selector)
	if err != nil {
		return root.Slice(0, 0)
	}
	return root.FindMatcher(compiled)
}

// value reads the text or attribute of a single element.
func (a Attempt) value(s *goquery.Selection) string {
	if a.Attr == "" {
		// Normalize whitespace: collapse runs of spaces and newlines
		return strings.Join(strings.Fields(s.Text()), " ")
	}
	v, _ := s.Attr(a.Attr)
	return strings.TrimSpace(v)
}

// First returns the first non-empty value produced by the rule's attempts,
// or "" when none of them match.
func (r Rule) First(root *goquery.Selection) string {
	for _, attempt := range r {
		var found string
		attempt.find(root).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = attempt.value(s)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// All returns the values of every element matched by the first attempt that
// matches anything, in document order. Empty values are kept so that callers
// can line up parallel lists.
func (r Rule) All(root *goquery.Selection) []string {
	for _, attempt := range r {
		matches := attempt.find(root)
		if matches.Length() == 0 {
			continue
		}

		values := make([]string, 0, matches.Length())
		matches.Each(func(_ int, s *goquery.Selection) {
			values = append(values, attempt.value(s))
		})
		return values
	}
	return nil
}

// Nodes returns the elements matched by the first attempt that matches
// anything.
func (r Rule) Nodes(root *goquery.Selection) *goquery.Selection {
	for _, attempt := range r {
		if matches := attempt.find(root); matches.Length() > 0 {
			return matches
		}
	}
	return root.Slice(0, 0)
}
