package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChange(t *testing.T) {
	t.Run("valid change", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"action":"updated","contact_id":42,"source":"crm"}`)}
		require.NoError(t, msg.ParseChange())
		require.NotNil(t, msg.Change)
		assert.Equal(t, "updated", msg.Change.Action)
		assert.Equal(t, int64(42), msg.Change.ContactID)
		assert.True(t, msg.IsContactChange())
	})

	t.Run("embedded contact", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"action":"created","contact_id":7,"contact":{"id":7,"name":"Jane Roe"}}`)}
		require.NoError(t, msg.ParseChange())
		require.NotNil(t, msg.Change.Contact)
		assert.Equal(t, "Jane Roe", *msg.Change.Contact.Name)
	})

	t.Run("malformed json", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"action":`)}
		assert.Error(t, msg.ParseChange())
		assert.False(t, msg.IsContactChange())
	})

	t.Run("missing contact id", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"action":"updated"}`)}
		require.NoError(t, msg.ParseChange())
		assert.False(t, msg.IsContactChange())
	})

	// Well-formed payloads for other entities parse cleanly but are not
	// contact changes; the consumer skips them rather than treating them as
	// parse failures.
	t.Run("non-contact event", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"action":"deal.updated","source":"crm"}`)}
		require.NoError(t, msg.ParseChange())
		assert.False(t, msg.IsContactChange())
	})
}
