package compiler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/evidence"
)

var factOrder = []string{"date", "party", "event", "amount", "location", "other"}

const unknownFile = "unknown file"

type document struct {
	markdown  string
	sources   []Source
	sentences []TracedSentence
}

type exhibit struct {
	label string
	pages map[int]bool
}

type renderer struct {
	files    map[uuid.UUID]evidence.File
	exhibits map[uuid.UUID]*exhibit
	order    []uuid.UUID
	title    cases.Caser
}

func (r *renderer) exhibit(evidenceID uuid.UUID) *exhibit {
	if ex, ok := r.exhibits[evidenceID]; ok {
		return ex
	}
	ex := &exhibit{label: ExhibitLabel(len(r.order)), pages: make(map[int]bool)}
	r.exhibits[evidenceID] = ex
	r.order = append(r.order, evidenceID)
	return ex
}

func (r *renderer) fileName(evidenceID uuid.UUID) string {
	if f, ok := r.files[evidenceID]; ok && f.OriginalName != "" {
		return f.OriginalName
	}
	return unknownFile
}

// render assumes the claim set passed the gate. Exhibit labels are assigned
// in order of first citation as paragraphs are emitted.
func render(set *claimSet, facts []claims.Fact, files map[uuid.UUID]evidence.File) document {
	r := &renderer{
		files:    files,
		exhibits: make(map[uuid.UUID]*exhibit),
		title:    cases.Title(language.English),
	}

	var b strings.Builder
	var sentences []TracedSentence
	tmpl := set.template

	fmt.Fprintf(&b, "# %s\n", tmpl.Title)

	rendered := make(map[uuid.UUID]bool, len(set.included))
	number := 0

	for _, section := range tmpl.Sections {
		var members []claims.Claim
		for _, cl := range set.included {
			if !rendered[cl.ID] && section.Matches(cl.ClaimType, cl.Tags) {
				members = append(members, cl)
			}
		}

		if len(members) == 0 {
			if section.AlwaysRender {
				fmt.Fprintf(&b, "\n## %s\n\n_%s_\n", section.Title, placeholder(section.Placeholder))
			}
			continue
		}

		fmt.Fprintf(&b, "\n## %s\n\n", section.Title)
		for _, cl := range members {
			rendered[cl.ID] = true
			number++
			sentence := r.paragraph(number, section.Key, cl, set.citations[cl.ID])
			sentences = append(sentences, sentence)
			b.WriteString(r.line(sentence, cl, set.citations[cl.ID]))
		}
	}

	sources := r.sources()
	if len(sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, s := range sources {
			fmt.Fprintf(&b, "- Exhibit %s: %s%s\n", s.ExhibitLabel, s.FileName, pageList(s.PagesReferenced))
		}
	}

	if len(facts) > 0 {
		r.facts(&b, facts)
	}

	return document{
		markdown:  b.String(),
		sources:   sources,
		sentences: sentences,
	}
}

func (r *renderer) paragraph(number int, sectionKey string, cl claims.Claim, citations []claims.Citation) TracedSentence {
	s := TracedSentence{
		Number:        number,
		SectionKey:    sectionKey,
		ClaimID:       cl.ID,
		Text:          cl.ClaimText,
		CitationIDs:   make([]uuid.UUID, 0, len(citations)),
		EvidenceIDs:   make([]uuid.UUID, 0, len(citations)),
		QuoteSnippets: make([]string, 0, len(citations)),
	}
	for _, ci := range citations {
		ex := r.exhibit(ci.EvidenceID)
		if ci.PageNumber != nil {
			ex.pages[*ci.PageNumber] = true
		}
		s.CitationIDs = append(s.CitationIDs, ci.ID)
		if !slices.Contains(s.EvidenceIDs, ci.EvidenceID) {
			s.EvidenceIDs = append(s.EvidenceIDs, ci.EvidenceID)
		}
		s.QuoteSnippets = append(s.QuoteSnippets, snippet(ci.Quote))
	}
	return s
}

func (r *renderer) line(s TracedSentence, cl claims.Claim, citations []claims.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s", s.Number, strings.TrimSpace(cl.ClaimText))
	for _, ci := range citations {
		fmt.Fprintf(&b, " [Source: Exhibit %s, %s]", r.exhibits[ci.EvidenceID].label, location(ci))
	}
	if cl.MissingInfoFlag {
		b.WriteString(" _(information needed)_")
	}
	b.WriteString("\n")
	return b.String()
}

func (r *renderer) sources() []Source {
	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		ex := r.exhibits[id]
		out = append(out, Source{
			EvidenceID:      id,
			ExhibitLabel:    ex.label,
			FileName:        r.fileName(id),
			PagesReferenced: sortedPages(ex.pages),
		})
	}
	return out
}

func (r *renderer) facts(b *strings.Builder, facts []claims.Fact) {
	groups := make(map[string][]claims.Fact)
	for _, f := range facts {
		t := strings.ToLower(strings.TrimSpace(f.FactType))
		if t == "" {
			t = "other"
		}
		groups[t] = append(groups[t], f)
	}

	b.WriteString("\n## Pending Facts (Unreviewed)\n")
	for _, t := range factTypes(groups) {
		fmt.Fprintf(b, "\n### %s\n\n", r.title.String(t))
		for _, f := range groups[t] {
			fmt.Fprintf(b, "- %s (%s", strings.TrimSpace(f.Text), r.fileName(f.EvidenceID))
			if f.PageNumber != nil {
				fmt.Fprintf(b, ", p.%d", *f.PageNumber)
			}
			b.WriteString(")\n")
		}
	}
}

// factTypes orders the known fact types first, then any others
// alphabetically.
func factTypes(groups map[string][]claims.Fact) []string {
	var out, rest []string
	for _, t := range factOrder {
		if len(groups[t]) > 0 {
			out = append(out, t)
		}
	}
	for t := range groups {
		if !slices.Contains(factOrder, t) {
			rest = append(rest, t)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func location(ci claims.Citation) string {
	switch {
	case ci.PageNumber != nil:
		return "p." + strconv.Itoa(*ci.PageNumber)
	case ci.TimestampSeconds != nil:
		return "t=" + strconv.FormatFloat(*ci.TimestampSeconds, 'f', -1, 64) + "s"
	default:
		return "verify location"
	}
}

func pageList(pages []int) string {
	switch len(pages) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf(" (p.%d)", pages[0])
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return " (pp. " + strings.Join(parts, ", ") + ")"
}

func placeholder(text string) string {
	if strings.TrimSpace(text) == "" {
		return "No claims recorded."
	}
	return strings.TrimSpace(text)
}
