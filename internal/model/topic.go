package model

import "strings"

// Topic convention: discovery watches a wildcard under the root prefix and
// each sensor publishes samples on <prefix>/<sensorID>/data.

// DataTopic returns the data topic for one sensor.
func DataTopic(prefix, sensorID string) string {
	return prefix + "/" + sensorID + "/data"
}

// WildcardTopic returns the discovery subscription pattern.
func WildcardTopic(prefix string) string {
	return prefix + "/#"
}

// ParseDataTopic extracts the sensor identifier from a data topic. Reports
// false for topics outside the prefix or without the /data suffix.
func ParseDataTopic(prefix, topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != prefix || parts[2] != "data" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
