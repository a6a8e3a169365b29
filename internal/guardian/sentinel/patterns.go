package sentinel

import (
	"context"
	"regexp"
)

// injectionPatterns are the signature patterns for SQL, script, shell command
// and directory (LDAP) injection.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:union\s+select|drop\s+table|insert\s+into|delete\s+from|update\s+\w+\s+set|;\s*--)`),
	regexp.MustCompile(`(?i)<\s*script[^>]*>|javascript\s*:|on\w+\s*=`),
	regexp.MustCompile("(?:;|\\||&&|\\$\\(|`)\\s*(?:cat|ls|rm|curl|wget|bash|sh|python|nc)\\b"),
	regexp.MustCompile(`[()*|&].*?(?:objectClass|userPassword|cn=|uid=)`),
}

// PatternDetector flags text matching any signature pattern. It is local and
// cannot fail.
type PatternDetector struct{}

func (PatternDetector) Method() string { return MethodRules }

func (PatternDetector) Detect(_ context.Context, text string) Vote {
	return Judged(MethodRules, MatchesPattern(text))
}

// MatchesPattern reports whether any signature pattern matches text.
func MatchesPattern(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
