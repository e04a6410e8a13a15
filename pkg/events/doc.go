/*
Package events provides an in-memory event broker used to publish
cluster-visible occurrences: worker enable/disable/eviction, database
and table lifecycle changes, transaction begin/end, and job start and
finish. It supports any number of subscribers with asynchronous,
best-effort delivery (a full subscriber buffer drops the event rather
than blocking the publisher).

# Architecture

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each, dropped if full)

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:    events.EventWorkerEvicted,
		Message: "worker evicted after failed health probe",
		Metadata: map[string]string{"worker": "worker01"},
	})

Consumers such as the ingest HTTP layer or an audit sink read from the
Subscriber channel returned by Subscribe.
*/
package events
