package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event flowing through the broker.
//
// The supervisor publishes the port.scan_* and port.changed events;
// nothing in this module publishes the container.* events or
// port.alert_created.
type EventType string

const (
	EventContainerStarted   EventType = "container.started"
	EventContainerStopped   EventType = "container.stopped"
	EventContainerDestroyed EventType = "container.destroyed"

	EventPortScanStarted   EventType = "port.scan_started"
	EventPortScanCompleted EventType = "port.scan_completed"
	EventPortScanFailed    EventType = "port.scan_failed"
	EventPortChanged       EventType = "port.changed"
	EventPortAlertCreated  EventType = "port.alert_created"
)

// PortChangeSubtype narrows an EventPortChanged event (spec §6 subtypes).
type PortChangeSubtype string

const (
	SubtypeReserved              PortChangeSubtype = "reserved"
	SubtypeReleased              PortChangeSubtype = "released"
	SubtypeAvailabilityChanged   PortChangeSubtype = "availability_changed"
	SubtypeContainerStarted      PortChangeSubtype = "container_started"
	SubtypeContainerStopped      PortChangeSubtype = "container_stopped"
	SubtypeDeploymentValidated   PortChangeSubtype = "deployment_validated"
	SubtypeReservationRequested  PortChangeSubtype = "reservation_requested"
	SubtypeReleaseRequested      PortChangeSubtype = "release_requested"
)

// Event represents a single occurrence published on the broker.
type Event struct {
	ID        string
	Type      EventType
	Subtype   PortChangeSubtype
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// NewEvent builds an Event of the given type with a fresh ID.
func NewEvent(t EventType, msg string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Message:   msg,
		Metadata:  make(map[string]string),
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
