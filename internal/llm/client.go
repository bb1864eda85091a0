package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/doc-assistant/internal/domain"
	"github.com/spherical/doc-assistant/internal/observability"
)

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultVisionModel = "llama-3.2-90b-vision-preview"
	defaultChatModel   = "llama-3.3-70b-versatile"
	completionsPath    = "/chat/completions"
)

// Options configures a Client. Empty strings fall back to the Groq defaults.
// Numeric fields are used as given: MaxRetries 0 sends each request once and
// RequestTimeout 0 leaves requests bounded only by the caller's context.
type Options struct {
	BaseURL        string
	APIKey         string
	VisionModel    string
	ChatModel      string
	RequestTimeout time.Duration
	MaxRetries     int

	VisionTemperature float64
	VisionMaxTokens   int
	ChatTemperature   float64
	ChatMaxTokens     int
	TopP              float64
}

// Client handles communication with an OpenAI-compatible chat completions API
type Client struct {
	opts       Options
	retry      *RetryConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message. Content is a string for plain text turns
// and a []ContentPart for turns carrying an image.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
	Stop        []string  `json:"stop"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewClient creates a new LLM client
func NewClient(opts Options, logger *observability.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.VisionModel == "" {
		opts.VisionModel = defaultVisionModel
	}
	if opts.ChatModel == "" {
		opts.ChatModel = defaultChatModel
	}
	if logger == nil {
		logger = observability.Nop()
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = opts.MaxRetries

	return &Client{
		opts:       opts,
		retry:      retry,
		httpClient: &http.Client{},
		logger:     logger.WithComponent("llm"),
	}
}

// AnalyzeImage sends one user turn holding the prompt and the image and
// returns the full, non-streamed completion.
func (c *Client) AnalyzeImage(ctx context.Context, prompt, imageDataURL string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.buildVisionRequest(prompt, imageDataURL)

	resp, err := c.send(ctx, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.APIError("Failed to decode response", err)
	}
	if len(out.Choices) == 0 {
		return "", domain.APIError("Response contained no choices", nil)
	}

	return out.Choices[0].Message.Content, nil
}

// StreamChat sends a text-only completion request and forwards each content
// delta to deltaCh until the stream ends.
func (c *Client) StreamChat(ctx context.Context, messages []domain.ChatMessage, deltaCh chan<- string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.buildChatRequest(messages)

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.parseStream(ctx, resp.Body, deltaCh)
}

// buildVisionRequest constructs the image-understanding request
func (c *Client) buildVisionRequest(prompt, imageDataURL string) *Request {
	msg := Message{
		Role: string(domain.RoleUser),
		Content: []ContentPart{
			{
				Type: "text",
				Text: prompt,
			},
			{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: imageDataURL,
				},
			},
		},
	}

	return &Request{
		Model:       c.opts.VisionModel,
		Messages:    []Message{msg},
		Temperature: c.opts.VisionTemperature,
		MaxTokens:   c.opts.VisionMaxTokens,
		TopP:        c.opts.TopP,
		Stream:      false,
	}
}

// buildChatRequest constructs the streaming text-completion request
func (c *Client) buildChatRequest(messages []domain.ChatMessage) *Request {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, Message{Role: string(m.Role), Content: m.Content})
	}

	return &Request{
		Model:       c.opts.ChatModel,
		Messages:    msgs,
		Temperature: c.opts.ChatTemperature,
		MaxTokens:   c.opts.ChatMaxTokens,
		TopP:        c.opts.TopP,
		Stream:      true,
	}
}

// send posts the request with retry and returns a 200 response whose body the
// caller must close.
func (c *Client) send(ctx context.Context, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.APIError("Failed to marshal request", err)
	}

	url := c.opts.BaseURL + completionsPath
	start := time.Now()

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
		if req.Stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, domain.APIError("Failed to send request", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, errorMessage(bodyBytes)), nil)
	}

	c.logger.Debug().
		Str("model", req.Model).
		Bool("stream", req.Stream).
		Dur("latency", time.Since(start)).
		Msg("Completion request accepted")

	return resp, nil
}

// parseStream parses the Server-Sent Events stream
func (c *Client) parseStream(ctx context.Context, body io.Reader, deltaCh chan<- string) error {
	parser := NewStreamParser(body)
	if err := parser.ParseAll(ctx, deltaCh); err != nil {
		return domain.APIError("Failed to parse stream", err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// errorMessage extracts the provider's error message, falling back to the raw body.
func errorMessage(body []byte) string {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
