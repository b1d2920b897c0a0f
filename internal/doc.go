// Package internal contains shared types and utilities for gptmebox.
//
// It provides configuration parsing, session management, cleanup orchestration,
// and I/O abstractions used across the docker and gptme packages.
package internal
