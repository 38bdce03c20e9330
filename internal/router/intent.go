package router

import (
	"encoding/json"
	"strings"

	"github.com/netdout/relay/internal/daemon"
)

// IntentType names the kind of an intent on the wire and in metrics.
type IntentType string

const (
	TypeQueue  IntentType = "QUEUE"
	TypeStatus IntentType = "STATUS"
)

// Intent is a request from a UI surface: either QueueIntent or StatusIntent.
type Intent interface {
	Type() IntentType
	isIntent()
}

// QueueIntent asks the daemon to create a download job.
type QueueIntent struct {
	Request daemon.JobRequest
}

func (QueueIntent) Type() IntentType { return TypeQueue }
func (QueueIntent) isIntent()        {}

// StatusIntent asks the daemon for the state of a job.
type StatusIntent struct {
	ID daemon.JobHandle
}

func (StatusIntent) Type() IntentType { return TypeStatus }
func (StatusIntent) isIntent()        {}

// Result is the single reply to an intent.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Ok wraps a daemon payload.
func Ok(data json.RawMessage) Result {
	return Result{OK: true, Data: data}
}

// Err wraps a failure; the message is surfaced to the caller verbatim.
func Err(err error) Result {
	return Result{OK: false, Error: err.Error()}
}

// Message is the wire shape UI surfaces send:
// {"type":"QUEUE","url":...,"output":...} or {"type":"STATUS","id":...}.
type Message struct {
	Type   string `json:"type"`
	URL    string `json:"url,omitempty"`
	Output string `json:"output,omitempty"`
	ID     string `json:"id,omitempty"`
}

// legacy type names sent by the browser extension.
const (
	legacyQueue  = "NETDOUT_QUEUE"
	legacyStatus = "NETDOUT_STATUS"
)

// Intent decodes m. It reports false for unknown types, leaving the message
// to whichever other handler understands it.
func (m Message) Intent() (Intent, bool) {
	switch strings.ToUpper(strings.TrimSpace(m.Type)) {
	case string(TypeQueue), legacyQueue:
		return QueueIntent{Request: daemon.JobRequest{
			URL:    strings.TrimSpace(m.URL),
			Output: strings.TrimSpace(m.Output),
		}}, true
	case string(TypeStatus), legacyStatus:
		return StatusIntent{ID: daemon.JobHandle(strings.TrimSpace(m.ID))}, true
	default:
		return nil, false
	}
}
