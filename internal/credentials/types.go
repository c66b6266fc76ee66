package credentials

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Header names every captured HeaderSet carries.
const (
	HeaderCookie        = "Cookie"
	HeaderUserAgent     = "User-Agent"
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
)

// PlaceholderToken is the sample value shipped in example env files. It is
// never a usable credential.
const PlaceholderToken = "YOUR_AUTH_TOKEN_HERE"

// HeaderSet maps header name to value. It is treated as immutable once
// captured: refreshes replace it wholesale.
type HeaderSet map[string]string

// NewHeaderSet assembles the four headers the portal API expects.
func NewHeaderSet(cookie, userAgent, token, contentType string) HeaderSet {
	return HeaderSet{
		HeaderCookie:        cookie,
		HeaderUserAgent:     userAgent,
		HeaderAuthorization: token,
		HeaderContentType:   contentType,
	}
}

// IsUsableToken reports whether v can be sent as an Authorization value.
func IsUsableToken(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != PlaceholderToken
}

// HasToken reports whether the set carries a non-placeholder Authorization value.
func (h HeaderSet) HasToken() bool {
	return IsUsableToken(h[HeaderAuthorization])
}

// Clone returns an independent copy.
func (h HeaderSet) Clone() HeaderSet {
	if h == nil {
		return nil
	}
	out := make(HeaderSet, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// CachedCredential is the on-disk shape of the credential cache.
type CachedCredential struct {
	CapturedAt time.Time `json:"timestamp"`
	Headers    HeaderSet `json:"headers"`
}

// localTimestampLayout is ISO-8601 without a zone offset, read as local time.
const localTimestampLayout = "2006-01-02T15:04:05.999999999"

// UnmarshalJSON accepts RFC 3339 timestamps and offset-less ISO-8601 ones.
func (c *CachedCredential) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp string    `json:"timestamp"`
		Headers   HeaderSet `json:"headers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Headers = raw.Headers
	c.CapturedAt = time.Time{}
	if raw.Timestamp == "" {
		return nil
	}
	t, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	c.CapturedAt = t
	return nil
}

// ParseTimestamp parses a capture time written either with or without a zone.
func ParseTimestamp(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localTimestampLayout, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}
