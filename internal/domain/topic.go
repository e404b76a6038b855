package domain

import "strings"

// Topic names a live-update channel.
type Topic string

const (
	TopicIssuesUpdated        Topic = "minutes-tracker:issues-updated"
	TopicNotificationsUpdated Topic = "minutes-tracker:notifications-updated"
)

const topicPrefix = "minutes-tracker:"

// Topics lists every topic that is propagated across tabs.
var Topics = []Topic{TopicIssuesUpdated, TopicNotificationsUpdated}

// StorageKey returns the shared key whose writes signal this topic to other
// tabs. The second result is false for topics that are not propagated.
func (t Topic) StorageKey() (string, bool) {
	if !t.Known() {
		return "", false
	}
	return string(t) + ":key", true
}

// Known reports whether t is one of the fixed topics.
func (t Topic) Known() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// ShortName returns the topic without its namespace, e.g. "issues-updated".
func (t Topic) ShortName() string {
	return strings.TrimPrefix(string(t), topicPrefix)
}

// TopicForKey maps a shared storage key back to its topic.
func TopicForKey(key string) (Topic, bool) {
	for _, t := range Topics {
		if k, _ := t.StorageKey(); k == key {
			return t, true
		}
	}
	return "", false
}

// ParseTopic accepts either the full topic identifier or its short name.
func ParseTopic(name string) (Topic, bool) {
	t := Topic(name)
	if !strings.HasPrefix(name, topicPrefix) {
		t = Topic(topicPrefix + name)
	}
	if !t.Known() {
		return "", false
	}
	return t, true
}
