package placement

// DefaultSubscriberBuffer is used when Subscribe is given a non-positive size
const DefaultSubscriberBuffer = 16

func (s *State) notifySubscribers(ev Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Subscribe returns a channel that receives state events
func (s *State) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (s *State) Unsubscribe(ch chan Event) {
	s.subsMu.Lock()
	if _, exists := s.subs[ch]; exists {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

// Close closes all subscriber channels
func (s *State) Close() {
	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subsMu.Unlock()
}
