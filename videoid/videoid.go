// Package videoid extracts YouTube video ids from user input.
package videoid

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalid is returned by Resolve for input that is neither a supported
// link nor a bare video id.
var ErrInvalid = errors.New("not a valid youtube link or video id")

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var watchHosts = map[string]bool{
	"youtube.com":       true,
	"m.youtube.com":     true,
	"www.youtube.com":   true,
	"www.m.youtube.com": true,
}

const shareHost = "youtu.be"

// Parse returns the video id expressed by link. Two forms are accepted:
//
//	https://youtube.com/watch?v=<id>   (also m., www. and www.m. hosts)
//	https://youtu.be/<id>
func Parse(link string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case watchHosts[host]:
		if u.Path != "/watch" {
			return "", false
		}
		return checkID(u.Query().Get("v"))
	case host == shareHost:
		return checkID(strings.TrimPrefix(u.Path, "/"))
	default:
		return "", false
	}
}

// Valid reports whether id has the shape of a video id.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// LooksLikeLink reports whether s appears to be a URL rather than a bare id.
func LooksLikeLink(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Contains(s, "://") || strings.Contains(s, "/") || strings.Contains(s, "?")
}

// Resolve accepts either a supported link or a bare video id.
func Resolve(input string) (string, error) {
	input = strings.TrimSpace(input)
	if LooksLikeLink(input) {
		if id, ok := Parse(input); ok {
			return id, nil
		}
		return "", ErrInvalid
	}
	if Valid(input) {
		return input, nil
	}
	return "", ErrInvalid
}

func checkID(id string) (string, bool) {
	if !Valid(id) {
		return "", false
	}
	return id, true
}
