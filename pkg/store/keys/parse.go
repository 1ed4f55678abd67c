package keys

import (
	"fmt"
	"strings"

	"framesync/pkg/models"
)

// ParseMessageKey splits a message key into anchor, anchor id and
// interaction id.
func ParseMessageKey(key string) (models.InteractionAnchor, string, string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "i" || parts[3] != "m" {
		return "", "", "", fmt.Errorf("invalid message key: %q", key)
	}
	anchor := models.InteractionAnchor(parts[1])
	if anchor != models.AnchorGroup && anchor != models.AnchorThread {
		return "", "", "", fmt.Errorf("invalid anchor in key: %q", key)
	}
	return anchor, parts[2], parts[4], nil
}

// ParseGraphEdgeKey splits a share graph edge key into user id and asset
// global id.
func ParseGraphEdgeKey(key string) (string, string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "g" || parts[1] != "u" || parts[3] != "a" {
		return "", "", fmt.Errorf("invalid graph edge key: %q", key)
	}
	return parts[2], parts[4], nil
}

// ParseDownloadKey splits a download queue key into asset global id and
// user id.
func ParseDownloadKey(key string) (string, string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "dq" {
		return "", "", fmt.Errorf("invalid download queue key: %q", key)
	}
	return parts[1], parts[2], nil
}

// TrimPrefix returns the remainder of key after prefix, or an error when
// the key does not carry it.
func TrimPrefix(key, prefix string) (string, error) {
	if !strings.HasPrefix(key, prefix) {
		return "", fmt.Errorf("key %q does not match prefix %q", key, prefix)
	}
	return key[len(prefix):], nil
}
