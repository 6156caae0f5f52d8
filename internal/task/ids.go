package task

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a 12 character hex task id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

var platformHosts = []struct {
	platform string
	markers  []string
}{
	{platform: "douyin", markers: []string{"douyin"}},
	{platform: "tiktok", markers: []string{"tiktok"}},
	{platform: "xhs", markers: []string{"xiaohongshu", "xhslink"}},
	{platform: "facebook", markers: []string{"facebook", "fb.watch"}},
	{platform: "youtube", markers: []string{"youtube", "youtu.be"}},
}

// InferPlatform guesses the source platform from a URL's host.
func InferPlatform(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	host := source
	if parsed, err := url.Parse(source); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	for _, entry := range platformHosts {
		for _, marker := range entry.markers {
			if strings.Contains(host, marker) {
				return entry.platform
			}
		}
	}
	return defaultPlatform
}
