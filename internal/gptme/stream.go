package gptme

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// maxEventSize bounds a single server-sent event line. Model output arrives
// in small chunks, but stored messages carry the full response in one event.
const maxEventSize = 1024 * 1024

// GenerateChunk is one streamed unit of a generation: partial output while
// Stored is false, then the complete stored message.
type GenerateChunk struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Stored  bool   `json:"stored"`
}

// GenerateStream asks the server to produce the next response in the
// conversation and streams it, invoking fn for every chunk as it arrives.
// An empty model means the server default. The stream ends when the server
// closes it or the context is cancelled.
func (c *Client) GenerateStream(ctx context.Context, id, model string, fn func(GenerateChunk)) error {
	payload := map[string]any{
		"stream": true,
	}
	if model != "" {
		payload["model"] = model
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode generate request: %w", err)
	}

	path := "/api/conversations/" + url.PathEscape(id) + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request for POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gptme-server at %s: %w\nCheck that the container is running and the port is published", c.baseURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newStatusError(http.MethodPost, path, response)
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	for scanner.Scan() {
		line := scanner.Text()

		// Events arrive as "data: <json>" lines; everything else is keepalive.
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var chunk GenerateChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("failed to decode stream chunk %q: %w", data, err)
		}

		fn(chunk)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read generate stream: %w", err)
	}

	return nil
}
