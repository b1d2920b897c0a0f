package gptme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Message is a single chat message in a conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationSummary is one entry of the conversation listing.
type ConversationSummary struct {
	Name     string  `json:"name"`
	Modified float64 `json:"modified"`
	Messages int     `json:"messages"`
}

// Conversation is the server's record of a conversation: its message log and
// the workspace directory it operates in.
type Conversation struct {
	Log       []Message `json:"log"`
	Workspace string    `json:"workspace"`
}

// RootResponse is the health payload served at /api.
type RootResponse struct {
	Message string `json:"message"`
}

// StatusError reports a non-2xx response from the server.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("gptme-server returned %d for %s %s: %s", e.Status, e.Method, e.Path, e.Body)
	}
	return fmt.Sprintf("gptme-server returned %d for %s %s", e.Status, e.Method, e.Path)
}

// Client talks to a gptme-server over its REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request. Servers started
// without GPTME_DISABLE_AUTH=true require one.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL.
//
// The default HTTP client carries no overall timeout because generation
// responses stream for as long as the model produces output; bound individual
// calls with a context instead.
func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Root checks the server's health endpoint.
func (c *Client) Root(ctx context.Context) (RootResponse, error) {
	var response RootResponse
	err := c.do(ctx, http.MethodGet, "/api", nil, &response)
	if err != nil {
		return RootResponse{}, err
	}
	return response, nil
}

// Conversations lists up to limit conversations, most recently modified first.
func (c *Client) Conversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	var conversations []ConversationSummary
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/conversations?limit=%d", limit), nil, &conversations)
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// CreateConversation creates a conversation under the given name, optionally
// seeded with initial messages and a chat configuration.
func (c *Client) CreateConversation(ctx context.Context, id string, messages []Message, config map[string]any) error {
	payload := map[string]any{
		"logfile": id,
	}
	if len(messages) > 0 {
		payload["messages"] = messages
	}
	if len(config) > 0 {
		payload["config"] = config
	}

	return c.do(ctx, http.MethodPut, "/api/conversations/"+url.PathEscape(id), payload, nil)
}

// GetConversation fetches a conversation's message log and workspace.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conversation Conversation
	err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &conversation)
	if err != nil {
		return Conversation{}, err
	}
	return conversation, nil
}

// AddMessage appends a message to the conversation's main branch.
func (c *Client) AddMessage(ctx context.Context, id, role, content string) error {
	payload := map[string]string{
		"role":    role,
		"content": content,
		"branch":  "main",
	}

	return c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(id), payload, nil)
}

// Generate asks the server to produce the next response in the conversation
// and returns the stored messages. An empty model means the server default.
func (c *Client) Generate(ctx context.Context, id, model string) ([]Message, error) {
	payload := map[string]any{
		"stream": false,
	}
	if model != "" {
		payload["model"] = model
	}

	var messages []Message
	err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(id)+"/generate", payload, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body for %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request for %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gptme-server at %s: %w\nCheck that the container is running and the port is published", c.baseURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newStatusError(method, path, response)
	}

	if result == nil {
		return nil
	}

	err = json.NewDecoder(response.Body).Decode(result)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}

	return nil
}

func newStatusError(method, path string, response *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))

	return StatusError{
		Method: method,
		Path:   path,
		Status: response.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}
