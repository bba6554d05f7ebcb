package dto

// GenerateRequest is a single-turn model call. Both the Vertex and the
// Gemini API adapters accept it.
type GenerateRequest struct {
	Model           string
	System          string
	UserMessage     string
	InlineData      []Blob
	ResponseSchema  *Schema // when set the model must answer with JSON matching it
	Temperature     *float32
	MaxOutputTokens *int32
}

type GenerateResponse struct {
	Text string
	Raw  any
}

type Blob struct {
	MIMEType string
	Data     []byte
}

type Schema struct {
	Type        string
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}
