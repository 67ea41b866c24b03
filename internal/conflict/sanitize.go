package conflict

import "github.com/microcosm-cc/bluemonday"

// HTMLSanitizer strips scripts, event handlers, and other unsafe markup from
// remote note content while keeping ordinary formatting.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer returns a sanitizer using the user-generated-content policy.
func NewHTMLSanitizer() *HTMLSanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	return &HTMLSanitizer{policy: p}
}

// Sanitize returns content with unsafe markup removed.
func (s *HTMLSanitizer) Sanitize(content string) string {
	return s.policy.Sanitize(content)
}
