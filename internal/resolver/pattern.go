package resolver

import "strings"

// orderedDefault is one substring rule. Rules are ordered: the first hit
// wins, so more specific phrases sit above their general forms.
type orderedDefault struct {
	phrase string
	answer string
}

// yesNoDefaults answer the compliance questions that recur across portals
// near-verbatim. These encode the common case for an employable candidate;
// anything the table gets wrong surfaces in review before submission, since
// the engine never submits.
var yesNoDefaults = []orderedDefault{
	{"18 years", "Yes"},
	{"authorized to work", "Yes"},
	{"legally authorized", "Yes"},
	{"require sponsorship", "No"},
	{"visa sponsorship", "No"},
	{"government official", "No"},
	{"close relative of a government", "No"},
	{"conflict of interest", "No"},
	{"financial interest", "No"},
	{"referred to this position by", "No"},
	{"senior leader", "No"},
	{"previously employed", "No"},
	{"previously been employed", "No"},
	{"former employee", "No"},
	{"confirm receipt", "Confirmed"},
	{"acknowledge", "Yes"},
	{"agree", "Yes"},
	{"i understand", "Yes"},
	{"current role", "Yes"},
	{"currently work here", "Yes"},
	{"i currently work", "Yes"},
}

// demographicDefaults decline voluntary self-identification. The answers are
// fragments of the option texts portals actually use; option matching maps
// them onto the concrete choice.
var demographicDefaults = []orderedDefault{
	{"gender", "Decline"},
	{"race", "Decline"},
	{"ethnicity", "Decline"},
	{"hispanic", "Decline"},
	{"latino", "Decline"},
	{"veteran", "not a protected veteran"},
	{"disability", "do not want to answer"},
}

// textDefaults cover free-text questions with a conventional answer.
var textDefaults = []orderedDefault{
	{"years of experience", "15"},
	{"years experience", "15"},
	{"how many years", "15"},
	{"how did you hear", "LinkedIn"},
	{"how did you find", "LinkedIn"},
	{"where did you hear", "LinkedIn"},
}

// matchDefault scans a rule table for the first phrase contained in label.
func matchDefault(label string, table []orderedDefault) (string, bool) {
	ll := strings.ToLower(label)
	for _, rule := range table {
		if strings.Contains(ll, rule.phrase) {
			return rule.answer, true
		}
	}
	return "", false
}
