package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDraft_PreservesUnknownFields(t *testing.T) {
	input := `{"id":"d1","issues":[{"issue":"pothole","ward":7}],"minutesId":null,"status":"step-2"}`

	var d Draft
	if err := json.Unmarshal([]byte(input), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(d.Issues) != `[{"issue":"pothole","ward":7}]` {
		t.Errorf("issues changed: %s", d.Issues)
	}
	if string(d.MinutesID) != "null" {
		t.Errorf("explicit null minutesId should be kept, got %q", d.MinutesID)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(out)
	for _, want := range []string{`"status":"step-2"`, `"minutesId":null`, `"ward":7`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded draft missing %s: %s", want, s)
		}
	}
}

func TestDraft_AbsentMinutesIDStaysAbsent(t *testing.T) {
	out, err := json.Marshal(Draft{ID: "d2"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "minutesId") {
		t.Errorf("minutesId should be omitted: %s", out)
	}
	if !strings.Contains(string(out), `"issues":[]`) {
		t.Errorf("issues should default to an empty array: %s", out)
	}
}

func TestDraft_LenientTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", `{"id":"a","createdAt":"2025-03-01T10:00:00.123Z"}`, time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC)},
		{"date only", `{"id":"a","createdAt":"2025-03-01"}`, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", `{"id":"a","createdAt":"yesterday"}`, time.Time{}},
		{"wrong type", `{"id":"a","createdAt":42}`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Draft
			if err := json.Unmarshal([]byte(tt.input), &d); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !d.CreatedAt.Equal(tt.want) {
				t.Errorf("createdAt = %v, want %v", d.CreatedAt, tt.want)
			}
		})
	}
}

func TestDraft_RejectsNonObject(t *testing.T) {
	var d Draft
	if err := json.Unmarshal([]byte(`"d1"`), &d); err == nil {
		t.Error("expected an error for a non-object draft")
	}
}

func TestDraft_SortTimeFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Draft{CreatedAt: created}
	if !d.SortTime().Equal(created) {
		t.Errorf("SortTime = %v, want %v", d.SortTime(), created)
	}
}

func TestTopic_StorageKeys(t *testing.T) {
	key, ok := TopicIssuesUpdated.StorageKey()
	if !ok || key != "minutes-tracker:issues-updated:key" {
		t.Errorf("issues key = %q, %v", key, ok)
	}
	if topic, ok := TopicForKey("minutes-tracker:notifications-updated:key"); !ok || topic != TopicNotificationsUpdated {
		t.Errorf("TopicForKey = %q, %v", topic, ok)
	}
	if _, ok := Topic("minutes-tracker:other").StorageKey(); ok {
		t.Error("unknown topic should have no storage key")
	}
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		in   string
		want Topic
		ok   bool
	}{
		{"issues-updated", TopicIssuesUpdated, true},
		{"minutes-tracker:notifications-updated", TopicNotificationsUpdated, true},
		{"reports", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseTopic(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTopic(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecodeMarker(t *testing.T) {
	n := DecodeMarker(TopicIssuesUpdated, []byte(`{"ts":1700000000000,"payload":{"department":"PWD"},"origin":"tab-1"}`))
	if n.Payload["department"] != "PWD" || n.Origin != "tab-1" {
		t.Errorf("decoded = %+v", n)
	}
	if n.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", n.Timestamp)
	}

	bad := DecodeMarker(TopicIssuesUpdated, []byte(`{"payload":"oops"}`))
	if bad.Payload == nil || len(bad.Payload) != 0 {
		t.Errorf("malformed marker should give empty payload, got %v", bad.Payload)
	}
}
