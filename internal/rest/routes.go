package rest

import (
	"strings"
)

// Route segments whose following id is a major parameter: quotas are scoped
// by it, so it stays in the bucket key while every other id is masked.
var majorSegments = map[string]bool{
	"channels": true,
	"guilds":   true,
	"webhooks": true,
}

// bucketKey derives the rate-limit bucket key for a request: the HTTP
// method plus the route with all variable ids masked except the first major
// parameter. Two requests sharing method, route shape and major parameter
// always land in the same bucket, whatever their minor parameters are.
func bucketKey(method, path string) string {
	segments := strings.Split(path, "/")
	majorSeen := false
	for i, seg := range segments {
		if !isID(seg) {
			continue
		}
		if !majorSeen && i > 0 && majorSegments[segments[i-1]] {
			majorSeen = true
			continue
		}
		segments[i] = "{id}"
	}
	return method + ":" + strings.Join(segments, "/")
}

// isID reports whether a path segment is a numeric entity id.
func isID(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
