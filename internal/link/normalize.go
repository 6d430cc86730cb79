// Package link rewrites hosted-video locators into player URLs that carry
// only the library and content identifiers.
package link

import (
	"errors"
	"net/url"
	"strings"
)

// Locator errors. They are returned unwrapped so callers can compare with ==
// or errors.Is.
var (
	ErrMalformedURL       = errors.New("malformed url")
	ErrUnrecognizedSource = errors.New("unrecognized source")
	ErrInvalidPathShape   = errors.New("invalid path shape")
)

const (
	hostMarker  = "mediadelivery.net"
	pathKeyword = "iframe"
)

var routeKeywords = map[string]bool{"play": true, "embed": true}

// Normalizer builds playback URLs against a fixed player front-end.
type Normalizer struct {
	PlayerBase string
}

// New returns a Normalizer for the given player base URL.
func New(playerBase string) *Normalizer {
	return &Normalizer{PlayerBase: strings.TrimRight(playerBase, "/")}
}

// Normalize validates locator and returns <playerBase>/?lib=<lib>&id=<id>.
func (n *Normalizer) Normalize(locator string) (string, error) {
	lib, id, err := Extract(locator)
	if err != nil {
		return "", err
	}
	// lib precedes id; url.Values.Encode would sort them the same way but
	// the order is part of the contract.
	return strings.TrimRight(n.PlayerBase, "/") + "/?lib=" + url.QueryEscape(lib) + "&id=" + url.QueryEscape(id), nil
}

// Extract returns the library and content identifiers embedded in locator.
func Extract(locator string) (lib, id string, err error) {
	raw := strings.TrimSpace(locator)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", ErrMalformedURL
	}

	if !strings.Contains(strings.ToLower(u.Host), hostMarker) && !strings.Contains(strings.ToLower(raw), pathKeyword) {
		return "", "", ErrUnrecognizedSource
	}

	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 || !routeKeywords[parts[0]] {
		return "", "", ErrInvalidPathShape
	}
	return parts[1], parts[2], nil
}

// UserMessage renders a locator error for the submitter.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMalformedURL):
		return "❌ That doesn't look like a valid URL. Please send the full video link."
	case errors.Is(err, ErrUnrecognizedSource):
		return "❌ Please send a valid video URL (should contain \"mediadelivery.net\")."
	case errors.Is(err, ErrInvalidPathShape):
		return "❌ Invalid video URL format. Expected a /play/<library>/<video> or /embed/<library>/<video> link."
	default:
		return "❌ Error processing video link. Please check the URL and try again."
	}
}
