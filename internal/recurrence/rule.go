package recurrence

import "time"

// Tag names a recurrence rule.
type Tag string

const (
	Hourly  Tag = "hourly"
	Daily   Tag = "daily"
	Weekly  Tag = "weekly"
	Monthly Tag = "monthly"
)

// Marker returns the literal text that selects the tag inside an event
// description, e.g. ":daily:".
func (t Tag) Marker() string {
	return ":" + string(t) + ":"
}

// Rule places the next occurrence StartOffset after the trigger's start and
// ends it Duration after the trigger's start. Both are anchored to the
// trigger, not to each other.
type Rule struct {
	Tag         Tag
	StartOffset time.Duration
	Duration    time.Duration
}

// OffsetMillis returns StartOffset in milliseconds.
func (r Rule) OffsetMillis() int64 {
	return r.StartOffset.Milliseconds()
}

// DurationMillis returns Duration in milliseconds.
func (r Rule) DurationMillis() int64 {
	return r.Duration.Milliseconds()
}

const (
	defaultDuration = 100 * time.Minute
	hourlyDuration  = 3559 * time.Second
)

// Vocabulary lists the known rules in match priority order.
var Vocabulary = []Rule{
	{Tag: Hourly, StartOffset: time.Hour, Duration: hourlyDuration},
	{Tag: Daily, StartOffset: 24 * time.Hour, Duration: defaultDuration},
	{Tag: Weekly, StartOffset: 7 * 24 * time.Hour, Duration: defaultDuration},
	{Tag: Monthly, StartOffset: 730 * time.Hour, Duration: defaultDuration},
}

var rulesByTag = func() map[Tag]Rule {
	m := make(map[Tag]Rule, len(Vocabulary))
	for _, r := range Vocabulary {
		m[r.Tag] = r
	}
	return m
}()

// Lookup returns the rule for tag. Unknown tags report false.
func Lookup(tag Tag) (Rule, bool) {
	r, ok := rulesByTag[tag]
	return r, ok
}
