package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Draft is an in-progress issue-assignment record kept between the steps of
// the minutes upload workflow.
type Draft struct {
	ID string `json:"id"`
	// Issues is stored verbatim; the store never looks inside it.
	Issues json.RawMessage `json:"issues"`
	// MinutesID references a backend minutes document. An explicit JSON null
	// is kept as given.
	MinutesID   json.RawMessage `json:"minutesId,omitempty"`
	Title       string          `json:"title,omitempty"`
	MeetingDate string          `json:"meetingDate,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`

	// Extra holds top-level fields this version does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

var draftFields = map[string]struct{}{
	"id": {}, "issues": {}, "minutesId": {}, "title": {},
	"meetingDate": {}, "createdAt": {}, "updatedAt": {},
}

// SortTime is the timestamp used for recency ordering.
func (d Draft) SortTime() time.Time {
	if !d.UpdatedAt.IsZero() {
		return d.UpdatedAt
	}
	return d.CreatedAt
}

func (d Draft) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+len(draftFields))
	for k, v := range d.Extra {
		if _, known := draftFields[k]; !known {
			out[k] = v
		}
	}

	id, err := json.Marshal(d.ID)
	if err != nil {
		return nil, err
	}
	out["id"] = id

	out["issues"] = json.RawMessage("[]")
	if len(d.Issues) > 0 {
		out["issues"] = d.Issues
	}
	if len(d.MinutesID) > 0 {
		out["minutesId"] = d.MinutesID
	}
	if d.Title != "" {
		out["title"], _ = json.Marshal(d.Title)
	}
	if d.MeetingDate != "" {
		out["meetingDate"], _ = json.Marshal(d.MeetingDate)
	}
	if !d.CreatedAt.IsZero() {
		out["createdAt"], _ = json.Marshal(d.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	if !d.UpdatedAt.IsZero() {
		out["updatedAt"], _ = json.Marshal(d.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}

	return json.Marshal(out)
}

func (d *Draft) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding draft: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("decoding draft: not an object")
	}

	*d = Draft{}
	for k, v := range fields {
		switch k {
		case "id":
			if err := json.Unmarshal(v, &d.ID); err != nil {
				return fmt.Errorf("decoding draft id: %w", err)
			}
		case "issues":
			d.Issues = v
		case "minutesId":
			d.MinutesID = v
		case "title":
			d.Title = decodeString(v)
		case "meetingDate":
			d.MeetingDate = decodeString(v)
		case "createdAt":
			d.CreatedAt = decodeTime(v)
		case "updatedAt":
			d.UpdatedAt = decodeTime(v)
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]json.RawMessage)
			}
			d.Extra[k] = v
		}
	}
	return nil
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// decodeTime is lenient: an unparseable timestamp reads as absent.
func decodeTime(raw json.RawMessage) time.Time {
	s := decodeString(raw)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
