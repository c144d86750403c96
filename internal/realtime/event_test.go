package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("notify trigger envelope", func(t *testing.T) {
		raw := `{"type":"UPDATE","schema":"public","table":"recyclables","record":{"id":"1"},"old_record":{"id":"1"},"commit_timestamp":"2025-03-01T10:00:00Z"}`

		ev, err := DecodeEvent([]byte(raw), ListingsTable)
		require.NoError(t, err)
		assert.Equal(t, EventUpdate, ev.Type)
		assert.Equal(t, "public", ev.Schema)
		assert.Equal(t, "recyclables", ev.Table)
		assert.JSONEq(t, `{"id":"1"}`, string(ev.Record))
		assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.CommitTimestamp)
	})

	t.Run("debezium envelope", func(t *testing.T) {
		raw := `{"payload":{"op":"d","before":{"id":"7"},"after":null,"source":{"schema":"public","table":"recyclables","ts_ms":1700000000000}}}`

		ev, err := DecodeEvent([]byte(raw), ListingsTable)
		require.NoError(t, err)
		assert.Equal(t, EventDelete, ev.Type)
		assert.Equal(t, "recyclables", ev.Table)
		assert.JSONEq(t, `{"id":"7"}`, string(ev.OldRecord))
		assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.CommitTimestamp)
	})

	t.Run("unknown payload still signals a change", func(t *testing.T) {
		ev, err := DecodeEvent([]byte("not json"), ListingsTable)
		assert.ErrorIs(t, err, errUnrecognizedPayload)
		assert.Equal(t, EventUpdate, ev.Type)
		assert.Equal(t, ListingsTable, ev.Table)
		assert.Nil(t, ev.Record)
	})
}
