package tuning

import (
	"github.com/sirupsen/logrus"
)

// Status is published whenever the stable detection or the target changes.
// Cents is only meaningful when Detected is true and the target is set.
type Status struct {
	Detected          bool
	DetectedFrequency float64
	DetectedNote      string
	Cents             float64
	TargetNote        string
	TargetFrequency   float64
	AutoMode          bool
	Active            bool
}

// Transport is a paired device receiving tuning status updates.
type Transport interface {
	Connected() bool
	SendStatus(Status) error
}

// subscriberBuffer is the channel capacity of each subscription.
const subscriberBuffer = 16

// subscribers fans statuses out to channels. Callers hold the session mutex.
type subscribers struct {
	next int
	subs map[int]chan Status
}

func (s *subscribers) add() (int, chan Status) {
	if s.subs == nil {
		s.subs = make(map[int]chan Status)
	}
	id := s.next
	s.next++
	ch := make(chan Status, subscriberBuffer)
	s.subs[id] = ch
	return id, ch
}

func (s *subscribers) remove(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// publish never blocks; slow subscribers miss updates.
func (s *subscribers) publish(st Status) {
	for id, ch := range s.subs {
		if !trySend(ch, st) {
			logrus.WithFields(logrus.Fields{
				"function":   "subscribers.publish",
				"subscriber": id,
			}).Debug("Subscriber full, status dropped")
		}
	}
}

func (s *subscribers) closeAll() {
	for id := range s.subs {
		s.remove(id)
	}
}

// trySend sends v to c if it is not full. It reports whether v was sent.
func trySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}
