package gemini

// FallbackText is returned whenever a structurally valid response carries no
// usable text. It is deliberately distinct from backend-reported errors,
// which never reach extraction.
const FallbackText = "No response available"

// ExtractText pulls the first candidate's first text part out of a response.
// It never fails: any structurally missing piece yields FallbackText.
func ExtractText(response *GenerateResponse) string {
	if response == nil || len(response.Candidates) == 0 {
		return FallbackText
	}

	candidate := response.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return FallbackText
	}

	if text := candidate.Content.Parts[0].Text; text != nil {
		return *text
	}

	return FallbackText
}
