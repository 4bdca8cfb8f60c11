package history

import "time"

// Roles stored in a conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TimestampFormat is the ISO-8601 layout used for Message.Timestamp.
// Fixed microsecond precision keeps timestamps lexically sortable.
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// Message represents a single conversational message persisted in a session log.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage stamps a message with t in UTC.
func NewMessage(role, content string, t time.Time) Message {
	return Message{Role: role, Content: content, Timestamp: t.UTC().Format(TimestampFormat)}
}

// Time parses the message timestamp.
func (m Message) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, m.Timestamp)
}
