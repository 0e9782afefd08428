package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EntryTrackedMessage announces a new consumption entry. It carries only the
// entry id; the consumer re-reads the entry from the database.
type EntryTrackedMessage struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryTrackedMessage(id int64, date string) *EntryTrackedMessage {
	return &EntryTrackedMessage{
		ID:        id,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EntryTrackedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryTrackedMessageFromJSON decodes a message and rejects non-positive ids.
func EntryTrackedMessageFromJSON(data []byte) (*EntryTrackedMessage, error) {
	var msg EntryTrackedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, errors.New("entry id must be positive")
	}
	return &msg, nil
}
