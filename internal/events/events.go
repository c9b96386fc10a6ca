package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated     = "booking.created"
	EventBookingConfirmed   = "booking.confirmed"
	EventBookingCancelled   = "booking.cancelled"
	EventBookingCompleted   = "booking.completed"
	EventBookingNoShow      = "booking.no_show"
	EventBookingRescheduled = "booking.rescheduled"
	EventInquirySubmitted   = "inquiry.submitted"
	EventInquiryQuoted      = "inquiry.quoted"
	EventInquiryConverted   = "inquiry.converted"
	EventInquiryExpired     = "inquiry.expired"
	EventSettingsUpdated    = "settings.updated"
)

// NotifiableEvents are forwarded to the notification collaborator.
var NotifiableEvents = []string{
	EventBookingCreated,
	EventBookingConfirmed,
	EventBookingCancelled,
	EventBookingCompleted,
	EventBookingNoShow,
	EventBookingRescheduled,
	EventInquirySubmitted,
	EventInquiryQuoted,
	EventInquiryConverted,
	EventInquiryExpired,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	ResourceID    string    `json:"resource_id"`
	Date          string    `json:"date"`
	StartAt       time.Time `json:"start_at"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Amount        int64     `json:"amount"`
	RefundPercent int       `json:"refund_percent,omitempty"`
	RefundAmount  int64     `json:"refund_amount,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
}

func (p BookingEventPayload) EventKey() string { return p.BookingID }

// InquiryEventPayload describes an inquiry transition.
type InquiryEventPayload struct {
	InquiryID     string `json:"inquiry_id"`
	InquiryNumber string `json:"inquiry_number"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	ResourceID    string `json:"resource_id"`
	Date          string `json:"date"`
	SlotLabel     string `json:"slot_label"`
	Status        string `json:"status"`
	QuotedAmount  int64  `json:"quoted_amount,omitempty"`
	BookingID     string `json:"booking_id,omitempty"`
}

func (p InquiryEventPayload) EventKey() string { return p.InquiryID }

type SettingsEventPayload struct {
	Version   int64  `json:"version"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

// keyed payloads name the entity the event belongs to.
type keyed interface {
	EventKey() string
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	EntityID  string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	event := Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}
	if k, ok := payload.(keyed); ok {
		event.EntityID = k.EventKey()
	}
	return event, nil
}
