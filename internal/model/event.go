package model

import (
	"time"
)

// Event levels, ordered from most to least severe (RFC 5424).
const (
	LevelEmergency = "emergency"
	LevelAlert     = "alert"
	LevelCritical  = "critical"
	LevelError     = "error"
	LevelWarning   = "warning"
	LevelNotice    = "notice"
	LevelInfo      = "info"
	LevelDebug     = "debug"
)

// Levels lists all valid event levels.
var Levels = []string{
	LevelEmergency,
	LevelAlert,
	LevelCritical,
	LevelError,
	LevelWarning,
	LevelNotice,
	LevelInfo,
	LevelDebug,
}

// ValidLevel reports whether level is one of the fixed level enumeration.
func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Event initiators - who or what caused the event.
const (
	InitiatorUser    = "user"     // a logged-in user
	InitiatorWebUser = "web_user" // an anonymous web visitor
	InitiatorSystem  = "system"   // the application itself (cron, scheduler)
	InitiatorCLI     = "cli"      // a command-line invocation
	InitiatorOther   = "other"
)

// Reserved context keys. Keys starting with an underscore carry internal
// bookkeeping data and are excluded from message interpolation.
const (
	ContextKeyUserID      = "_user_id"
	ContextKeyOccasionsID = "_occasionsID"
	ContextKeyDate        = "_date"
	ContextKeyMessageKey  = "_message_key"
	ContextKeyInitiator   = "_initiator"
	ContextKeyRemoteAddr  = "_server_remote_addr"
	ContextKeyRequestID   = "_request_id"
	ContextKeyRepeated    = "_repeated"
)

// Event represents one stored audit trail entry, before any grouping.
type Event struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	Logger      string    `json:"logger"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	OccasionsID string    `json:"occasions_id"`
	Initiator   string    `json:"initiator"`
}

// ContextEntry is one key/value pair attached to an event.
type ContextEntry struct {
	ContextID int64
	HistoryID int64
	Key       string
	Value     string
}

// GroupedRow is the display-level projection of one or more consecutive
// events sharing the same occasion. It wraps the most recent event of the
// run together with the run bounds and the repeat count.
type GroupedRow struct {
	Event

	// SubsequentOccasions is the number of consecutive rows merged into
	// this group. 1 means the event appeared alone.
	SubsequentOccasions int64 `json:"subsequent_occasions"`

	// MaxID and MinID bound the ids of the merged run. They let a
	// follow-up occasions query fetch the remaining rows.
	MaxID int64 `json:"max_id"`
	MinID int64 `json:"min_id"`

	// Context holds the representative event's key/value metadata.
	Context map[string]string `json:"context,omitempty"`
}
