package suggestions

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ClaimType is the closed set of claim categories the model may return.
type ClaimType string

const (
	TypeFact          ClaimType = "fact"
	TypeEvent         ClaimType = "event"
	TypeStatement     ClaimType = "statement"
	TypeCommunication ClaimType = "communication"
	TypeFinancial     ClaimType = "financial"
	TypeMedical       ClaimType = "medical"
	TypeProperty      ClaimType = "property"
	TypeInjury        ClaimType = "injury"
	TypeProcedural    ClaimType = "procedural"
	TypeOther         ClaimType = "other"
)

// ParseClaimType maps model output onto ClaimType. Anything unrecognized is
// a fact.
func ParseClaimType(s string) ClaimType {
	switch t := ClaimType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeFact, TypeEvent, TypeStatement, TypeCommunication, TypeFinancial,
		TypeMedical, TypeProperty, TypeInjury, TypeProcedural, TypeOther:
		return t
	default:
		return TypeFact
	}
}

// Citation is the source location the model proposed for a claim.
type Citation struct {
	Quote            string
	PageNumber       *int
	TimestampSeconds *float64
	StartOffset      *int
	EndOffset        *int
}

// Suggestion is one validated claim proposal.
type Suggestion struct {
	ClaimText   string
	ClaimType   ClaimType
	Tags        []string
	MissingInfo bool
	Citation    *Citation
}

type rawCitation struct {
	Quote            string   `json:"quote"`
	PageNumber       *float64 `json:"page_number"`
	TimestampSeconds *float64 `json:"timestamp_seconds"`
	StartOffset      *float64 `json:"start_offset"`
	EndOffset        *float64 `json:"end_offset"`
}

type rawSuggestion struct {
	ClaimText   string       `json:"claim_text"`
	ClaimType   string       `json:"claim_type"`
	Tags        []string     `json:"tags"`
	MissingInfo bool         `json:"missing_info"`
	Citation    *rawCitation `json:"citation"`
}

type wrapper struct {
	Claims *[]rawSuggestion `json:"claims"`
}

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// Parse reads a model response as either a bare JSON array of claims or an
// object with a "claims" array, optionally inside a markdown code block.
// At most limit entries with non-empty text are returned; a limit below 1
// means DefaultMaxClaims.
func Parse(content string, limit int) ([]Suggestion, error) {
	if limit < 1 {
		limit = DefaultMaxClaims
	}

	content = strings.TrimSpace(content)
	if raw, ok := decode(content); ok {
		return validate(raw, limit), nil
	}

	matches := jsonBlockRegex.FindStringSubmatch(content)
	if len(matches) >= 2 {
		if raw, ok := decode(strings.TrimSpace(matches[1])); ok {
			return validate(raw, limit), nil
		}
	}

	return nil, fmt.Errorf("%w: could not parse JSON from response", ErrParse)
}

func decode(content string) ([]rawSuggestion, bool) {
	if strings.HasPrefix(content, "[") {
		var list []rawSuggestion
		if err := json.Unmarshal([]byte(content), &list); err == nil {
			return list, true
		}
		return nil, false
	}

	var w wrapper
	if err := json.Unmarshal([]byte(content), &w); err == nil && w.Claims != nil {
		return *w.Claims, true
	}
	return nil, false
}

func validate(raw []rawSuggestion, limit int) []Suggestion {
	out := make([]Suggestion, 0, min(len(raw), limit))
	for _, r := range raw {
		if len(out) == limit {
			break
		}

		text := strings.TrimSpace(r.ClaimText)
		if text == "" {
			continue
		}

		s := Suggestion{
			ClaimText:   text,
			ClaimType:   ParseClaimType(r.ClaimType),
			Tags:        cleanTags(r.Tags),
			MissingInfo: r.MissingInfo,
		}
		if r.Citation != nil && strings.TrimSpace(r.Citation.Quote) != "" {
			s.Citation = &Citation{
				Quote:            strings.TrimSpace(r.Citation.Quote),
				PageNumber:       positiveInt(r.Citation.PageNumber),
				TimestampSeconds: nonNegative(r.Citation.TimestampSeconds),
				StartOffset:      nonNegativeInt(r.Citation.StartOffset),
				EndOffset:        nonNegativeInt(r.Citation.EndOffset),
			}
		}
		out = append(out, s)
	}
	return out
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func positiveInt(v *float64) *int {
	if v == nil || *v < 1 || math.IsNaN(*v) {
		return nil
	}
	n := int(*v)
	return &n
}

func nonNegativeInt(v *float64) *int {
	if v == nil || *v < 0 || math.IsNaN(*v) {
		return nil
	}
	n := int(*v)
	return &n
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 || math.IsNaN(*v) {
		return nil
	}
	f := *v
	return &f
}
