package internal

import (
	"fmt"
	"math/rand/v2"
)

type Session struct {
	id int64
}

// GenerateSession creates a new session with a random numeric identifier.
// The session is used to generate unique container and conversation names.
func GenerateSession() Session {
	return Session{id: rand.Int64N(10000)}
}

// String returns the string representation of the session, equivalent to calling ID().
func (s Session) String() string {
	return string(s.ID())
}

// ID returns the session identifier in the format "gptmebox-<number>".
// This is used as the Docker container name.
func (s Session) ID() SessionID {
	return SessionID(fmt.Sprintf("gptmebox-%d", s.id))
}

// Conversation returns the conversation name in the format "gptmebox-chat-<number>".
// The smoke-test flow creates a conversation under this name on the launched server.
func (s Session) Conversation() string {
	return fmt.Sprintf("gptmebox-chat-%d", s.id)
}
