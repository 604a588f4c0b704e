/*
Package events provides an in-memory event broker for portguard's internal
pub/sub messaging.

The broker is topic-agnostic: every subscriber receives every event and
filters by Type itself. Publish is non-blocking; a subscriber with a full
buffer silently misses events rather than stalling the publisher, so
nothing on the fail-closed conflict-detection path may depend on event
delivery for correctness.

# Event Types

The supervisor is the only publisher: port.scan_started/completed/failed
bracket a scan cycle, and port.changed carries a Subtype of reserved,
released, availability_changed, or deployment_validated.

The container.* types, port.alert_created, and the container_started,
container_stopped, reservation_requested, and release_requested subtypes
are defined but nothing in this module publishes them. Container lifecycle
reaches the supervisor through container.Runtime.SubscribeEvents, not
through the broker.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			if ev.Type == events.EventPortChanged && ev.Subtype == events.SubtypeReserved {
				// ...
			}
		}
	}()

	broker.Publish(events.NewEvent(events.EventPortChanged, "port 8080 reserved"))
*/
package events
