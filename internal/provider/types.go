package provider

// Message is one entry of an OpenAI-compatible chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the upstream chat completion request. Streaming is always
// on and output is always capped; callers only supply messages.
type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens"`
}

// streamChunk mirrors one chat.completion.chunk SSE payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}
