package auth

import (
	"encoding/base64"
	"errors"
	"strings"
)

const (
	defaultAnchorBytes = 24
	defaultDeviceBytes = 9
	minAnchorBytes     = 16
)

// ErrMalformedHandle is returned for session handles that cannot be parsed.
var ErrMalformedHandle = errors.New("session: malformed handle")

// FormatSessionHandle joins a stored anchor and a per-login device nonce.
func FormatSessionHandle(anchor, device string) string {
	return anchor + "." + device
}

// ParseSessionHandle splits a handle of the form "<anchor>.<device>".
func ParseSessionHandle(handle string) (anchor, device string, err error) {
	handle = strings.TrimSpace(handle)
	anchor, device, ok := strings.Cut(handle, ".")
	if !ok || !validHandlePart(anchor) || !validHandlePart(device) {
		return "", "", ErrMalformedHandle
	}
	if _, err := base64.RawURLEncoding.DecodeString(anchor); err != nil {
		return "", "", ErrMalformedHandle
	}
	return anchor, device, nil
}

func validHandlePart(part string) bool {
	if part == "" || len(part) > 64 {
		return false
	}
	for i := 0; i < len(part); i++ {
		c := part[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
