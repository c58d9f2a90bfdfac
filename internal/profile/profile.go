package profile

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// Profile is the static personal-data mapping consulted read-only by the
// resolver. It is owned by the operator and never mutated by the engine.
type Profile struct {
	data map[string]interface{}
}

// Load reads a JSON profile file. The expected shape is free-form nested
// objects and arrays (personal, links, work_experience, education,
// documents); fields are addressed by dotted path.
func Load(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &Profile{data: data}, nil
}

// New wraps an already-decoded profile map, mainly for tests.
func New(data map[string]interface{}) *Profile {
	return &Profile{data: data}
}

// Get resolves a dotted path like "personal.first_name" or
// "education.0.school". Numeric segments index into arrays. Missing paths
// return "".
func (p *Profile) Get(path string) string {
	var cur interface{} = p.data
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]interface{}:
			cur = v[part]
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return ""
			}
			cur = v[idx]
		default:
			return ""
		}
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// labelSynonyms maps label phrases to profile paths. Matching is whole-word:
// "capacity" must not match "city". More specific phrases are listed before
// their general prefixes so the first hit wins.
var labelSynonyms = []struct {
	phrase string
	path   string
}{
	{"first name", "personal.first_name"},
	{"given name", "personal.first_name"},
	{"last name", "personal.last_name"},
	{"family name", "personal.last_name"},
	{"surname", "personal.last_name"},
	{"full name", "personal.full_name"},
	{"preferred name", "personal.preferred_name"},
	{"email", "personal.email"},
	{"phone", "personal.phone"},
	{"mobile", "personal.phone"},
	{"street address", "personal.street_address"},
	{"address line", "personal.street_address"},
	{"current location", "personal.location"},
	{"location", "personal.location"},
	{"city", "personal.city"},
	{"state", "personal.state"},
	{"country", "personal.country"},
	{"zip", "personal.zip_code"},
	{"postal", "personal.zip_code"},
	{"linkedin", "links.linkedin"},
	{"github", "links.github"},
	{"portfolio", "links.portfolio"},
	{"website", "links.portfolio"},
	{"company name", "work_experience.0.company"},
	{"current employer", "work_experience.0.company"},
	{"employer", "work_experience.0.company"},
	{"job title", "work_experience.0.title"},
	{"current title", "work_experience.0.title"},
	{"school", "education.0.school"},
	{"university", "education.0.school"},
	{"degree", "education.0.degree"},
	{"field of study", "education.0.discipline"},
	{"your major", "education.0.discipline"},
	{"discipline", "education.0.discipline"},
	{"graduation year", "education.0.end_year"},
	{"salary expectation", "preferences.salary_expectation"},
	{"desired salary", "preferences.salary_expectation"},
	{"notice period", "preferences.notice_period"},
}

var questionPrefix = regexp.MustCompile(`^\s*(are|do|did|have|has|will|would|can|is|were)\b`)

// FindByLabel matches a field label against the known attribute synonyms and
// returns (value, path). Labels phrased as questions are skipped: "are you
// authorized to work in this country" contains the word "country" but is not
// asking for one.
func (p *Profile) FindByLabel(label string) (string, string) {
	ll := strings.ToLower(label)
	if questionPrefix.MatchString(ll) {
		return "", ""
	}
	for _, syn := range labelSynonyms {
		if !wordBoundaryMatch(ll, syn.phrase) {
			continue
		}
		if val := p.Get(syn.path); val != "" {
			return val, syn.path
		}
	}
	return "", ""
}

// wordBoundaryMatch reports whether phrase occurs in s as whole words.
func wordBoundaryMatch(s, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordRune(rune(s[start-1]))
		afterOK := end == len(s) || !isWordRune(rune(s[end]))
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// DocumentPath routes a file-field label to the matching document from the
// profile: cover letter keywords win over the generic resume/cv keywords.
func (p *Profile) DocumentPath(label string) string {
	ll := strings.ToLower(label)
	if strings.Contains(ll, "cover letter") || strings.Contains(ll, "cover_letter") || strings.Contains(ll, "coverletter") {
		return p.Get("documents.cover_letter")
	}
	for _, kw := range []string{"resume", "cv", "attach"} {
		if strings.Contains(ll, kw) {
			return p.Get("documents.resume")
		}
	}
	return ""
}

// Context summarizes the profile for reasoning-service prompts: enough to
// answer portal questions, small enough to keep prompts cheap.
func (p *Profile) Context() string {
	var b strings.Builder
	write := func(name, path string) {
		if v := p.Get(path); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, v)
		}
	}
	write("Name", "personal.first_name")
	write("Last name", "personal.last_name")
	write("Location", "personal.location")
	write("Current title", "work_experience.0.title")
	write("Current company", "work_experience.0.company")
	write("Degree", "education.0.degree")
	write("School", "education.0.school")
	write("Years of experience", "personal.years_of_experience")
	return strings.TrimRight(b.String(), "\n")
}
