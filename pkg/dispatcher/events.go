package dispatcher

import (
	"fmt"
	"math/rand/v2"
)

// EventKind identifies what the UI should do with an Event
type EventKind int

const (
	EventToast EventKind = iota + 1
	EventPointsUpdate
	EventNavigateNext
	EventChallengeComplete
)

func (k EventKind) String() string {
	switch k {
	case EventToast:
		return "toast"
	case EventPointsUpdate:
		return "points_update"
	case EventNavigateNext:
		return "navigate_next"
	case EventChallengeComplete:
		return "challenge_complete"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ToastType is the severity of a toast
type ToastType string

const (
	ToastInfo  ToastType = "info"
	ToastError ToastType = "error"
)

// Toast is a transient notification
type Toast struct {
	Type    ToastType
	Title   string
	Message string
}

// Event is one UI signal produced by a dispatch
type Event struct {
	Kind  EventKind
	Toast *Toast

	// Set on EventPointsUpdate
	Username string
	Points   int
}

func toastEvent(typ ToastType, title, message string) Event {
	return Event{Kind: EventToast, Toast: &Toast{Type: typ, Title: title, Message: message}}
}

var compliments = []string{
	"Over the top",
	"Down the rabbit hole we go",
	"Bring that rainbow",
	"Nailed it",
	"Bravo",
	"Encore",
	"Way to go",
	"Awesome",
	"Well done",
	"Outstanding",
	"Keep it up",
	"You rock",
}

// RandomCompliment returns a compliment without trailing punctuation
func RandomCompliment() string {
	return compliments[rand.IntN(len(compliments))]
}
