package domain

import "context"

// Renderer turns an uploaded document into ordered page images
type Renderer interface {
	// Render rasterizes a PDF, or decodes a single image upload into one page
	Render(ctx context.Context, doc *Document) ([]PageImage, error)
}

// Role identifies the author of a chat turn sent to the model
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one text-only turn of a completion request
type ChatMessage struct {
	Role    Role
	Content string
}

// VisionClient performs the non-streaming image-understanding call
type VisionClient interface {
	// AnalyzeImage sends prompt plus one image (a data URL) and returns the completion text
	AnalyzeImage(ctx context.Context, prompt, imageDataURL string) (string, error)
}

// ChatClient performs the streaming text-completion call
type ChatClient interface {
	// StreamChat sends messages and delivers text deltas on deltaCh until the
	// stream ends. deltaCh is not closed by the implementation.
	StreamChat(ctx context.Context, messages []ChatMessage, deltaCh chan<- string) error
}
