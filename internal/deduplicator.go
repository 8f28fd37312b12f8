package internal

// Deduplicator removes duplicate events
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// Deduplicate keeps the first event for each ID, preserving order
func (d *Deduplicator) Deduplicate(events []Event) []Event {
	seen := make(map[string]struct{}, len(events))
	unique := make([]Event, 0, len(events))

	for _, ev := range events {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		unique = append(unique, ev)
	}

	return unique
}
