package dataimport

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Patient fields a column can be mapped to.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldDateOfBirth = "date_of_birth"
	FieldAddress     = "address"
	FieldNotes       = "notes"
)

const (
	headerWeight = 3
	valueWeight  = 1
	minScore     = 2
	sampleSize   = 5
)

type fieldRule struct {
	field  string
	header *regexp.Regexp
	value  *regexp.Regexp
}

// rules are in tie-break order. Dates come before phones since ISO dates
// also look like phone numbers.
var rules = []fieldRule{
	{
		field:  FieldFirstName,
		header: regexp.MustCompile(`(?i)^(first[\s_-]*name|given[\s_-]*name|fore[\s_-]*name|pr[eé]nom|voornaam)$`),
		value:  regexp.MustCompile(`^\p{Lu}[\p{L}'-]+$`),
	},
	{
		field:  FieldLastName,
		header: regexp.MustCompile(`(?i)^(last[\s_-]*name|surname|family[\s_-]*name|nom|nom[\s_]+de[\s_]+famille|achternaam|familienaam)$`),
		value:  regexp.MustCompile(`^\p{Lu}[\p{L}' -]+$`),
	},
	{
		field:  FieldEmail,
		header: regexp.MustCompile(`(?i)(e-?mail|courriel|mail)`),
		value:  regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	},
	{
		field:  FieldDateOfBirth,
		header: regexp.MustCompile(`(?i)(birth|dob|naissance|geboorte)`),
		value:  regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{4})$`),
	},
	{
		field:  FieldPhone,
		header: regexp.MustCompile(`(?i)(phone|t[eé]l|mobile|gsm|cell|telefoon)`),
		value:  regexp.MustCompile(`^\+?[\d\s().-]{7,}$`),
	},
	{
		field:  FieldAddress,
		header: regexp.MustCompile(`(?i)(address|adresse|adres|street|rue|straat)`),
		value:  regexp.MustCompile(`(\d+.*\p{L}{3,}|\p{L}{3,}.*\d+)`),
	},
	{
		field:  FieldNotes,
		header: regexp.MustCompile(`(?i)^(notes?|remarks?|comments?|remarques?|opmerkingen?)$`),
	},
}

// Fields lists the mappable patient fields.
func Fields() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.field
	}
	return out
}

// Suggestion maps one column to one patient field.
type Suggestion struct {
	Field  string `json:"field"`
	Column int    `json:"column"`
	Header string `json:"header"`
	Score  int    `json:"score"`
}

// Mapping is field -> column index.
type Mapping map[string]int

func scoreColumn(rule fieldRule, header string, samples []string) int {
	score := 0
	if rule.header != nil && rule.header.MatchString(strings.TrimSpace(header)) {
		score += headerWeight
	}
	if rule.value != nil {
		for _, v := range samples {
			if rule.value.MatchString(v) {
				score += valueWeight
			}
		}
	}
	return score
}

func columnSamples(t *Table, col int) []string {
	var out []string
	for _, row := range t.Rows {
		if v := row[col]; v != "" {
			out = append(out, v)
			if len(out) == sampleSize {
				break
			}
		}
	}
	return out
}

// SuggestMapping scores every field against every column and assigns
// greedily, best score first. A field or column is used at most once and
// pairs scoring below minScore are never assigned.
func SuggestMapping(t *Table) []Suggestion {
	var candidates []Suggestion
	for col, header := range t.Headers {
		samples := columnSamples(t, col)
		for _, rule := range rules {
			if s := scoreColumn(rule, header, samples); s >= minScore {
				candidates = append(candidates, Suggestion{Field: rule.field, Column: col, Header: header, Score: s})
			}
		}
	}

	order := make(map[string]int, len(rules))
	for i, r := range rules {
		order[r.field] = i
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if order[a.Field] != order[b.Field] {
			return order[a.Field] < order[b.Field]
		}
		return a.Column < b.Column
	})

	usedField := map[string]bool{}
	usedCol := map[int]bool{}
	var out []Suggestion
	for _, c := range candidates {
		if usedField[c.Field] || usedCol[c.Column] {
			continue
		}
		usedField[c.Field] = true
		usedCol[c.Column] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}

// ToMapping converts accepted suggestions to a Mapping.
func ToMapping(s []Suggestion) Mapping {
	m := make(Mapping, len(s))
	for _, v := range s {
		m[v.Field] = v.Column
	}
	return m
}

// ResolveMapping turns a caller-supplied field -> header name mapping into
// column indexes. Header names match case-insensitively.
func ResolveMapping(t *Table, byHeader map[string]string) (Mapping, error) {
	known := map[string]bool{}
	for _, f := range Fields() {
		known[f] = true
	}
	m := make(Mapping, len(byHeader))
	usedCol := map[int]string{}
	for field, header := range byHeader {
		if !known[field] {
			return nil, fmt.Errorf("unknown field %q", field)
		}
		if strings.TrimSpace(header) == "" {
			continue
		}
		col := -1
		for i, h := range t.Headers {
			if strings.EqualFold(h, strings.TrimSpace(header)) {
				col = i
				break
			}
		}
		if col < 0 {
			return nil, fmt.Errorf("column %q not found", header)
		}
		if other, ok := usedCol[col]; ok {
			return nil, fmt.Errorf("column %q is mapped to both %s and %s", header, other, field)
		}
		usedCol[col] = field
		m[field] = col
	}
	return m, nil
}
