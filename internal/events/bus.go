package events

import (
	"sync"
	"time"

	"copytrade-backend/internal/database"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened         EventType = "TRADE_OPENED"
	EventTradeClosed         EventType = "TRADE_CLOSED"
	EventCopiedTradeCreated  EventType = "COPIED_TRADE_CREATED"
	EventCopiedTradeSettled  EventType = "COPIED_TRADE_SETTLED"
	EventSettlementFailed    EventType = "SETTLEMENT_FAILED"
	EventRelationCreated     EventType = "RELATION_CREATED"
	EventRelationDeactivated EventType = "RELATION_DEACTIVATED"
	EventUserRegistered      EventType = "USER_REGISTERED"
	EventError               EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Delivery is
// asynchronous; the replication path never depends on it.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(trade *database.Trade) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"trade_id":    trade.ID,
			"trader_id":   trade.TraderID,
			"symbol":      trade.Symbol,
			"direction":   string(trade.Direction),
			"entry_price": trade.EntryPrice,
			"quantity":    trade.Quantity,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(trade *database.Trade) {
	data := map[string]interface{}{
		"trade_id":  trade.ID,
		"trader_id": trade.TraderID,
		"symbol":    trade.Symbol,
	}
	if trade.ExitPrice != nil {
		data["exit_price"] = *trade.ExitPrice
	}
	if trade.Pnl != nil {
		data["pnl"] = *trade.Pnl
	}
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: data,
	})
}

// PublishCopiedTradeCreated publishes a copied trade created event
func (eb *EventBus) PublishCopiedTradeCreated(copy *database.CopiedTrade) {
	eb.Publish(Event{
		Type: EventCopiedTradeCreated,
		Data: map[string]interface{}{
			"copied_trade_id":   copy.ID,
			"original_trade_id": copy.OriginalTradeID,
			"follower_id":       copy.FollowerID,
			"quantity":          copy.Quantity,
		},
	})
}

// PublishCopiedTradeSettled publishes a copied trade settled event
func (eb *EventBus) PublishCopiedTradeSettled(copy *database.CopiedTrade) {
	data := map[string]interface{}{
		"copied_trade_id":   copy.ID,
		"original_trade_id": copy.OriginalTradeID,
		"follower_id":       copy.FollowerID,
	}
	if copy.Pnl != nil {
		data["pnl"] = *copy.Pnl
	}
	eb.Publish(Event{
		Type: EventCopiedTradeSettled,
		Data: data,
	})
}

// PublishSettlementFailed publishes a per-follower settlement failure
func (eb *EventBus) PublishSettlementFailed(failure database.SettlementFailure) {
	eb.Publish(Event{
		Type: EventSettlementFailed,
		Data: map[string]interface{}{
			"copied_trade_id":   failure.CopiedTradeID,
			"original_trade_id": failure.OriginalTradeID,
			"follower_id":       failure.FollowerID,
			"reason":            failure.Reason,
			"attempts":          failure.Attempts,
		},
	})
}

// PublishRelationCreated publishes a copy relation created event
func (eb *EventBus) PublishRelationCreated(relation *database.CopyRelation) {
	eb.Publish(Event{
		Type: EventRelationCreated,
		Data: map[string]interface{}{
			"relation_id": relation.ID,
			"follower_id": relation.FollowerID,
			"trader_id":   relation.TraderID,
			"copy_ratio":  relation.CopyRatio,
		},
	})
}

// PublishRelationDeactivated publishes a copy relation deactivated event
func (eb *EventBus) PublishRelationDeactivated(relation *database.CopyRelation) {
	eb.Publish(Event{
		Type: EventRelationDeactivated,
		Data: map[string]interface{}{
			"relation_id": relation.ID,
			"follower_id": relation.FollowerID,
			"trader_id":   relation.TraderID,
		},
	})
}

// PublishUserRegistered publishes a user registered event
func (eb *EventBus) PublishUserRegistered(user *database.User) {
	eb.Publish(Event{
		Type: EventUserRegistered,
		Data: map[string]interface{}{
			"user_id":   user.ID,
			"username":  user.Username,
			"is_trader": user.IsTrader,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
