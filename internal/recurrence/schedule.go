package recurrence

import "strings"

// Extract returns the first tag whose marker occurs in description, checking
// Vocabulary in order. An empty description never matches.
func Extract(description string) (Tag, bool) {
	if description == "" {
		return "", false
	}
	for _, r := range Vocabulary {
		if strings.Contains(description, r.Tag.Marker()) {
			return r.Tag, true
		}
	}
	return "", false
}

// Resolve combines Extract and Lookup.
func Resolve(description string) (Rule, bool) {
	tag, ok := Extract(description)
	if !ok {
		return Rule{}, false
	}
	return Lookup(tag)
}

// Schedule computes the follow-up occurrence for a trigger starting at
// triggerStart (epoch milliseconds). Both bounds are offsets from the trigger's
// start, so end may precede start when Duration < StartOffset.
func Schedule(triggerStart int64, rule Rule) (start, end int64) {
	return triggerStart + rule.OffsetMillis(), triggerStart + rule.DurationMillis()
}
