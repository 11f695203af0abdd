package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBus(t *testing.T) {
	t.Parallel()

	t.Run("fans out to every subscriber", func(t *testing.T) {
		bus := NewBus()
		first, unsubFirst := bus.Subscribe()
		defer unsubFirst()
		second, unsubSecond := bus.Subscribe()
		defer unsubSecond()

		bus.Publish(Event{Type: TypeLeadCreated, TenantID: "acme"})

		for _, ch := range []<-chan Event{first, second} {
			got := <-ch
			assert.Equal(t, TypeLeadCreated, got.Type)
			assert.Equal(t, "acme", got.TenantID)
			assert.NotEmpty(t, got.ID)
			assert.NotEmpty(t, got.Timestamp)
		}
	})

	t.Run("keeps caller supplied id", func(t *testing.T) {
		bus := NewBus()
		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		bus.Publish(Event{ID: "fixed", Type: TypeDeletionPending})
		assert.Equal(t, "fixed", (<-ch).ID)
	})

	t.Run("drops instead of blocking when full", func(t *testing.T) {
		bus := NewBus()
		ch, unsubscribe := bus.Subscribe()
		defer unsubscribe()

		for i := 0; i < subscriberBuffer+10; i++ {
			bus.Publish(Event{Type: TypeLeadUpdated})
		}
		assert.Len(t, ch, subscriberBuffer)
	})

	t.Run("unsubscribe closes the channel once", func(t *testing.T) {
		bus := NewBus()
		ch, unsubscribe := bus.Subscribe()

		unsubscribe()
		unsubscribe()

		_, open := <-ch
		require.False(t, open)

		bus.Publish(Event{Type: TypeLeadCreated})
	})
}
