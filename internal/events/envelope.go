package events

import (
	"fmt"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/google/uuid"
)

const eventVersion = 1

// Envelope is the wire form of a ledger event on the stream
type Envelope struct {
	EventId       string             `json:"event_id"`
	EventType     models.EventType   `json:"event_type"`
	EventVersion  int                `json:"event_version"`
	Timestamp     time.Time          `json:"timestamp"`
	CorrelationId string             `json:"correlation_id,omitempty"`
	Source        string             `json:"source,omitempty"`
	Payload       models.LedgerEvent `json:"payload"`
}

// NewEnvelope wraps an event. The id is derived from the event itself so a
// redelivered publish carries the same id.
func NewEnvelope(event models.LedgerEvent, meta *models.RequestMeta) (Envelope, error) {
	if event.Type == "" {
		return Envelope{}, fmt.Errorf("event type is required")
	}
	if event.AccountId == "" {
		return Envelope{}, fmt.Errorf("account id is required")
	}

	timestamp := event.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	envelope := Envelope{
		EventId:      DeterministicEventId(string(event.Type), event.Reference, event.EntryId),
		EventType:    event.Type,
		EventVersion: eventVersion,
		Timestamp:    timestamp,
		Payload:      event,
	}
	if meta != nil {
		envelope.CorrelationId = meta.RequestId
		envelope.Source = meta.Source
	}
	return envelope, nil
}

func DeterministicEventId(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(joined)).String()
}
