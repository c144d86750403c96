package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType вид изменения строки
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventResync приходит после переподключения источника: изменения могли быть пропущены
	EventResync EventType = "RESYNC"
)

// Event непрозрачный конверт уведомления об изменении.
// Потребитель не должен полагаться на наличие diff по полям.
type Event struct {
	Type            EventType       `json:"type"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

var errUnrecognizedPayload = errors.New("нераспознанный формат уведомления")

// debeziumEnvelope минимальная форма сообщения Debezium
type debeziumEnvelope struct {
	Payload struct {
		Op     string          `json:"op"`
		Before json.RawMessage `json:"before"`
		After  json.RawMessage `json:"after"`
		Source struct {
			Schema string `json:"schema"`
			Table  string `json:"table"`
			TsMs   int64  `json:"ts_ms"`
		} `json:"source"`
	} `json:"payload"`
}

var debeziumOps = map[string]EventType{
	"c": EventInsert,
	"r": EventInsert,
	"u": EventUpdate,
	"d": EventDelete,
}

// DecodeEvent разбирает payload уведомления.
// Понимает собственный конверт (триггер NOTIFY) и конверт Debezium.
// Нераспознанный payload все равно превращается в событие: потребителю важен сам факт изменения.
func DecodeEvent(raw []byte, table string) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err == nil && ev.Type != "" {
		return ev, nil
	}

	var dbz debeziumEnvelope
	if err := json.Unmarshal(raw, &dbz); err == nil {
		if op, ok := debeziumOps[dbz.Payload.Op]; ok {
			return Event{
				Type:            op,
				Schema:          dbz.Payload.Source.Schema,
				Table:           dbz.Payload.Source.Table,
				Record:          dbz.Payload.After,
				OldRecord:       dbz.Payload.Before,
				CommitTimestamp: time.UnixMilli(dbz.Payload.Source.TsMs).UTC(),
			}, nil
		}
	}

	fallback := Event{Type: EventUpdate, Table: table, CommitTimestamp: time.Now().UTC()}
	if json.Valid(raw) {
		fallback.Record = json.RawMessage(raw)
	}
	return fallback, errUnrecognizedPayload
}
