package irc

import "strings"

// ParseTags splits an IRCv3 tag string ("id=1;color=#fff") into a map.
// A tag without '=' or with an empty value maps to "". Empty input
// yields an empty, non-nil map.
func ParseTags(raw string) map[string]string {
	tags := make(map[string]string)
	if raw == "" {
		return tags
	}
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		tags[key] = value
	}
	return tags
}
