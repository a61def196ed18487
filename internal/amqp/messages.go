package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Ayushsunny/Budgease/internal/persistence"
)

// BudgetChangedMessage announces a rewritten budget record. It carries only
// the identity and revision; consumers read the record from storage.
type BudgetChangedMessage struct {
	Identity  string    `json:"identity"`
	Revision  uint64    `json:"revision"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBudgetChangedMessage(identity string, revision uint64, origin string) *BudgetChangedMessage {
	return &BudgetChangedMessage{
		Identity:  identity,
		Revision:  revision,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BudgetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Change converts the message to the persistence announcement.
func (m *BudgetChangedMessage) Change() persistence.Change {
	return persistence.Change{Identity: m.Identity, Revision: m.Revision, Origin: m.Origin}
}

// BudgetChangedMessageFromJSON parses a message body. An empty identity is
// rejected since nothing can be re-read for it.
func BudgetChangedMessageFromJSON(data []byte) (*BudgetChangedMessage, error) {
	var msg BudgetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Identity == "" {
		return nil, errors.New("budget changed message without identity")
	}
	return &msg, nil
}
