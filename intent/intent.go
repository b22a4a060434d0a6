// Package intent classifies user utterances against an ordered rule table.
// Classification is a total pure function: every input maps to exactly one
// label, with no I/O involved.
package intent

import "strings"

// Intent is the classification label for one utterance.
type Intent string

const (
	EndCall         Intent = "end_call"
	Claims          Intent = "claims"
	CustomerService Intent = "customer_service"
	General         Intent = "general"
)

// Rule maps a keyword set to an intent. Rules are evaluated in order; the
// first rule with any keyword present wins.
type Rule struct {
	Intent   Intent
	Keywords []string
}

// DefaultRules is the fixed precedence table: end-of-call phrases first, then
// claim keywords, then service keywords. Anything unmatched is General.
var DefaultRules = []Rule{
	{
		Intent:   EndCall,
		Keywords: []string{"goodbye", "bye", "thank you bye", "that's all", "nothing else"},
	},
	{
		Intent:   Claims,
		Keywords: []string{"claim", "accident", "damage", "incident", "file", "report", "theft", "stolen"},
	},
	{
		Intent:   CustomerService,
		Keywords: []string{"policy", "quote", "coverage", "complaint", "help", "service", "question", "premium", "renew"},
	},
}

// Classifier classifies utterances against a rule table.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier. With no rules given, DefaultRules apply.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify lower-cases the utterance and returns the first matching rule's
// intent, or General when nothing matches. Matching is substring containment,
// so "claims" matches the "claim" keyword.
func (c *Classifier) Classify(utterance string) Intent {
	text := strings.ToLower(utterance)

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Intent
			}
		}
	}
	return General
}
