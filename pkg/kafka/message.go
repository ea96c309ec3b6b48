package kafka

import (
	"encoding/json"
	"time"

	"github.com/harperdesk/dedupe/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Change *ContactChangeMessage
}

// ContactChangeMessage is the intake payload announcing that a contact's raw
// fields were created or updated upstream. The pipeline re-reads the row by
// id, so only the id is mandatory; an embedded contact is for new records the
// consumer should insert first.
type ContactChangeMessage struct {
	Action    string          `json:"action"` // created, updated
	ContactID int64           `json:"contact_id"`
	Contact   *models.Contact `json:"contact,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParseChange parses the message value as a contact change
func (m *IncomingMessage) ParseChange() error {
	var change ContactChangeMessage
	if err := json.Unmarshal(m.Value, &change); err != nil {
		return err
	}
	m.Change = &change
	return nil
}

// IsContactChange reports whether the payload carries a usable contact change
func (m *IncomingMessage) IsContactChange() bool {
	return m.Change != nil && m.Change.ContactID > 0
}
