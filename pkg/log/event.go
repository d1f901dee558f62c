package log

import (
	"strings"
	"time"
)

// Event is one trace record. Exactly one of the payload pointers is set,
// matching Category.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the process run that produced the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Key is the subscription key or timer id the event concerns.
	Key string `cbor:"5,keyasint,omitempty"`

	Push       *PushEvent       `cbor:"10,keyasint,omitempty"`
	Subscribe  *SubscribeEvent  `cbor:"11,keyasint,omitempty"`
	Teardown   *TeardownEvent   `cbor:"12,keyasint,omitempty"`
	Transition *TransitionEvent `cbor:"13,keyasint,omitempty"`
	Error      *ErrorEventData  `cbor:"14,keyasint,omitempty"`
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerChannel is the host push channel.
	LayerChannel Layer = 0
	// LayerEngine is the template subscription engine.
	LayerEngine Layer = 1
	// LayerTimer is the countdown manager.
	LayerTimer Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerChannel:
		return "CHANNEL"
	case LayerEngine:
		return "ENGINE"
	case LayerTimer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a case-insensitive layer name.
func ParseLayer(s string) (Layer, bool) {
	switch strings.ToLower(s) {
	case "channel":
		return LayerChannel, true
	case "engine":
		return LayerEngine, true
	case "timer":
		return LayerTimer, true
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryPush is a value pushed by the host.
	CategoryPush Category = 0
	// CategorySubscribe is a subscribe attempt.
	CategorySubscribe Category = 1
	// CategoryTeardown is a per-key channel close during teardown.
	CategoryTeardown Category = 2
	// CategoryTransition is a countdown state transition.
	CategoryTransition Category = 3
	// CategoryError is an error at any layer.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryPush:
		return "PUSH"
	case CategorySubscribe:
		return "SUBSCRIBE"
	case CategoryTeardown:
		return "TEARDOWN"
	case CategoryTransition:
		return "TRANSITION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a case-insensitive category name.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(s) {
	case "push":
		return CategoryPush, true
	case "subscribe":
		return CategorySubscribe, true
	case "teardown":
		return CategoryTeardown, true
	case "transition":
		return CategoryTransition, true
	case "error":
		return CategoryError, true
	}
	return 0, false
}

// PushEvent captures one interpreted push.
type PushEvent struct {
	// Raw is the string form of the pushed value.
	Raw string `cbor:"1,keyasint" json:"raw"`

	// Family is the result family name of the key.
	Family string `cbor:"2,keyasint" json:"family"`

	// Value is the interpreted boolean.
	Value bool `cbor:"3,keyasint" json:"value"`

	// Changed reports whether the change callback fired.
	Changed bool `cbor:"4,keyasint,omitempty" json:"changed,omitempty"`
}

// SubscribeOutcome describes how a subscribe call ended.
type SubscribeOutcome uint8

const (
	// SubscribeOpened means a new channel was opened.
	SubscribeOpened SubscribeOutcome = 0
	// SubscribeDuplicate means the key was already subscribed.
	SubscribeDuplicate SubscribeOutcome = 1
	// SubscribeFailed means the host refused or the open failed.
	SubscribeFailed SubscribeOutcome = 2
)

// String returns the outcome name.
func (o SubscribeOutcome) String() string {
	switch o {
	case SubscribeOpened:
		return "OPENED"
	case SubscribeDuplicate:
		return "DUPLICATE"
	case SubscribeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// SubscribeEvent captures a subscribe attempt.
type SubscribeEvent struct {
	// Template is the preprocessed template text sent to the host.
	Template string `cbor:"1,keyasint,omitempty"`

	// Outcome of the attempt.
	Outcome SubscribeOutcome `cbor:"2,keyasint"`
}

// TeardownEvent captures the close of one channel.
type TeardownEvent struct {
	// Closed is true when the handle closed cleanly.
	Closed bool `cbor:"1,keyasint" json:"closed"`

	// Reason holds the close error text when Closed is false.
	Reason string `cbor:"2,keyasint,omitempty" json:"reason,omitempty"`
}

// TransitionEvent captures a countdown state change.
type TransitionEvent struct {
	// OldStatus is the previous status name.
	OldStatus string `cbor:"1,keyasint" json:"old_status"`

	// NewStatus is the new status name.
	NewStatus string `cbor:"2,keyasint" json:"new_status"`

	// Remaining is the remaining seconds after the transition.
	Remaining int `cbor:"3,keyasint" json:"remaining"`

	// Operation names what caused the transition (start, tick, pause...).
	Operation string `cbor:"4,keyasint,omitempty" json:"operation,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
