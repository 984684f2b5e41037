package suggestions

import (
	"fmt"
	"strings"
)

// SystemPrompt constrains the model to neutral, quoted, non-inferential
// claims in the JSON shape Parse accepts.
const SystemPrompt = `You are a legal evidence analyst. Read the provided evidence text and propose factual claims a case team could rely on.

OUTPUT FORMAT: Respond with ONLY a JSON object matching this exact schema:
{
	"claims": [
		{
			"claim_text": "<one neutral factual statement>",
			"claim_type": "<fact|event|statement|communication|financial|medical|property|injury|procedural|other>",
			"tags": ["<short lower-case topic>"],
			"missing_info": <boolean>,
			"citation": {
				"quote": "<exact short quote from the text>",
				"page_number": <optional integer>,
				"timestamp_seconds": <optional number>
			}
		}
	]
}

INSTRUCTIONS:
- State neutral factual statements only; no opinions, characterizations or legal conclusions
- Do not infer dates, motives or intent that the text does not state
- When a detail is needed but absent, set missing_info=true rather than inventing it
- Every claim must carry an exact short quote copied from the text
- Use the page markers in the text ("[Page N]") for page_number when present
- Return at most 10 claims
- JSON response only; no preamble or dialog`

func buildUserPrompt(text string, maxChars int) string {
	if r := []rune(text); maxChars > 0 && len(r) > maxChars {
		text = string(r[:maxChars])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Evidence text (%d characters):\n", len([]rune(text)))
	sb.WriteString(text)
	sb.WriteString("\n\nPropose claims supported by this text.")
	return sb.String()
}
