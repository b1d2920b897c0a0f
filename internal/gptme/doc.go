// Package gptme provides a client for the gptme-server REST API.
//
// The launcher uses it to detect when the containerized server is ready to
// answer. It also covers the conversation surface: listing, creating,
// reading, and appending to conversations, and generating responses with
// optional server-sent event streaming.
package gptme
