package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherToDispatcherDelivery(t *testing.T) {
	queue := NewMemoryQueue(8)
	sender := &fakeEmailSender{}
	svc := newTestService(sender, &NotificationSettings{
		TenantName: "Acme Realty",
		Enabled:    true,
		OwnerEmail: "owner@acme.example",
	})
	publisher := NewPublisher(queue, nil)
	dispatcher := NewDispatcher(queue, svc, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	require.NoError(t, publisher.EnqueueLeadCreated(ctx, testLead()))

	require.Eventually(t, func() bool {
		return len(sender.recipients()) == 1
	}, 2*time.Second, 10*time.Millisecond, "dispatcher should deliver the enqueued lead")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}

	assert.Equal(t, []string{"owner@acme.example"}, sender.recipients())
}

func TestDispatcherDropsMalformedMessages(t *testing.T) {
	queue := NewMemoryQueue(8)
	sender := &fakeEmailSender{}
	svc := newTestService(sender, &NotificationSettings{
		TenantName: "Acme Realty",
		Enabled:    true,
		OwnerEmail: "owner@acme.example",
	})
	dispatcher := NewDispatcher(queue, svc, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	require.NoError(t, queue.Send(ctx, "{not json"))
	require.NoError(t, queue.Send(ctx, `{"kind":"something_else"}`))

	// A valid message behind the junk still gets through.
	body, err := encodeLeadCreated(testLead())
	require.NoError(t, err)
	require.NoError(t, queue.Send(ctx, body))

	require.Eventually(t, func() bool {
		return len(sender.recipients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)

	start := time.Now()
	msgs, err := queue.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestQueuePayloadRoundTrip(t *testing.T) {
	lead := testLead()
	body, err := encodeLeadCreated(lead)
	require.NoError(t, err)

	payload, err := decodeLeadCreated(body)
	require.NoError(t, err)
	assert.Equal(t, lead, payload.Lead)
	assert.Equal(t, kindLeadCreated, payload.Kind)
	assert.NotEmpty(t, payload.ID)
}
