package ledger

import (
	"log/slog"
	"time"

	"github.com/custodia-vault/custodia/interfaces"
)

// emit appends an event to the log and fans it out to subscribers. Callers
// hold the write lock and pass the clock reading their mutation used, so the
// event carries the exact timestamp it records.
func (l *Ledger) emit(kind interfaces.EventKind, id interfaces.VaultID, now time.Time) {
	l.nextSeq++
	event := interfaces.Event{
		Seq:       l.nextSeq,
		Kind:      kind,
		VaultID:   id,
		Timestamp: now,
	}
	l.events = append(l.events, event)

	for subID, ch := range l.subs {
		select {
		case ch <- event:
		default:
			// A subscriber that stops draining loses events rather than
			// blocking the ledger.
			l.log.Warn("Dropping event for slow subscriber",
				slog.Int("subscriber", subID),
				slog.Uint64("seq", event.Seq))
		}
	}
}

// ListEvents returns all events with Seq > sinceSeq, in order.
func (l *Ledger) ListEvents(sinceSeq uint64) []interfaces.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if sinceSeq >= l.nextSeq {
		return nil
	}
	// Seq numbers are gap-free and 1-based, so the slice offset is direct.
	return append([]interfaces.Event(nil), l.events[sinceSeq:]...)
}

// Subscribe registers a buffered channel receiving all future events. The
// returned function unsubscribes and closes the channel.
func (l *Ledger) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan interfaces.Event, buffer)
	subID := l.nextSub
	l.nextSub++
	l.subs[subID] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[subID]; ok {
			delete(l.subs, subID)
			close(ch)
		}
	}
	return ch, cancel
}
