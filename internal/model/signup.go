package model

import (
	"strings"
	"time"
)

type SignupSource string

const (
	SourceForm   SignupSource = "form"
	SourceImport SignupSource = "import"
	SourceSeed   SignupSource = "seed"
)

func (s SignupSource) String() string { return string(s) }

func (s SignupSource) Valid() bool {
	return s == SourceForm || s == SourceImport || s == SourceSeed
}

// ParseSignupSource normalizes input; empty => form.
func ParseSignupSource(s string) (SignupSource, bool) {
	switch src := SignupSource(strings.ToLower(strings.TrimSpace(s))); {
	case src == "":
		return SourceForm, true
	case src.Valid():
		return src, true
	default:
		return SourceForm, false
	}
}

// SignupEnvelope is the outbox payload published to Kafka (via Debezium outbox SMT)
// whenever a subscriber row is created.
type SignupEnvelope struct {
	EventID      string       `json:"event_id"` // ULID
	SubscriberID int64        `json:"subscriber_id"`
	Source       SignupSource `json:"source"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

// DailySignups is one row of the signup report.
type DailySignups struct {
	Day    time.Time    `db:"day"    json:"day"`
	Source SignupSource `db:"source" json:"source"`
	Count  uint64       `db:"count"  json:"count"`
}
