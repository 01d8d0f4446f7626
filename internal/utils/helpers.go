package utils

import (
	"strings"
)

// TopicMatches reports whether an MQTT topic matches a subscription filter
// containing '+' and '#' wildcards.
func TopicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// ParseDeviceID returns the topic segment sitting under the first '+' of the
// filter, e.g. "boxes/+/telemetry" and "boxes/BOX1/telemetry" give "BOX1".
func ParseDeviceID(filter, topic string) string {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "+" && i < len(tp) {
			return tp[i]
		}
	}
	if len(tp) > 1 {
		return tp[1]
	}
	return ""
}
