package gemini

// Request and response shapes of the generateContent endpoint. Field names
// follow the wire format, which mixes snake_case and camelCase.

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction string           `json:"system_instruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	Tools             []tool           `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type tool struct {
	GoogleSearch *googleSearch `json:"googleSearch,omitempty"`
}

type googleSearch struct{}

// GenerateResponse is the successful completion payload. Candidates hold
// alternative completions; only the first is ever consumed.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one alternative completion.
type Candidate struct {
	Content *CandidateContent `json:"content"`
}

// CandidateContent holds the ordered content parts of a candidate.
type CandidateContent struct {
	Parts []CandidatePart `json:"parts"`
}

// CandidatePart is one content part. Text is a pointer so an absent field
// can be told apart from an empty string.
type CandidatePart struct {
	Text *string `json:"text"`
}
