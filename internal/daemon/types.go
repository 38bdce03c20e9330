package daemon

import (
	"encoding/json"
	"fmt"
)

// DefaultOutput is the output path used when a job request does not name one.
const DefaultOutput = "./download.bin"

// JobHandle is the identifier the daemon assigns to a job.
type JobHandle string

// JobRequest is the body of a job creation call.
type JobRequest struct {
	URL    string `json:"url"`
	Output string `json:"output"`
}

// HandleFromPayload extracts the "id" field of a daemon response.
func HandleFromPayload(payload json.RawMessage) (JobHandle, bool) {
	var body struct {
		ID json.RawMessage `json:"id"`
	}

	if err := json.Unmarshal(payload, &body); err != nil || len(body.ID) == 0 {
		return "", false
	}

	var id string
	if err := json.Unmarshal(body.ID, &id); err == nil {
		return JobHandle(id), id != ""
	}

	// Numeric ids are kept verbatim.
	var num json.Number
	if err := json.Unmarshal(body.ID, &num); err == nil {
		return JobHandle(num.String()), true
	}

	return "", false
}

// JobInfo is the subset of a status payload the CLI knows how to render.
// The relay itself never interprets status payloads.
type JobInfo struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Output          string  `json:"output"`
	TotalBytes      *uint64 `json:"total_bytes"`
	DownloadedBytes uint64  `json:"downloaded_bytes"`
	State           string  `json:"-"`
	Reason          string  `json:"-"`
}

// ParseJobInfo decodes a status payload. The state is read from "status" or
// "state" and may be a plain string ("running") or a single-key object
// carrying a reason ({"failed": "disk full"}).
func ParseJobInfo(payload json.RawMessage) (JobInfo, error) {
	var info JobInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return JobInfo{}, fmt.Errorf("failed to decode job info: %w", err)
	}

	var states struct {
		Status json.RawMessage `json:"status"`
		State  json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(payload, &states); err != nil {
		return JobInfo{}, fmt.Errorf("failed to decode job state: %w", err)
	}

	raw := states.Status
	if len(raw) == 0 {
		raw = states.State
	}

	if len(raw) == 0 {
		return info, nil
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		info.State = plain

		return info, nil
	}

	var tagged map[string]string
	if err := json.Unmarshal(raw, &tagged); err == nil && len(tagged) == 1 {
		for state, reason := range tagged {
			info.State, info.Reason = state, reason
		}

		return info, nil
	}

	return info, nil
}
