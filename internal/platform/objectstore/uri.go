package objectstore

import (
	"fmt"
	"path"
	"strings"
)

// Location addresses an object or key prefix in a bucket.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI parses scheme://bucket/key-prefix. The key may be empty.
func ParseURI(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{}, fmt.Errorf("storage path %q: missing scheme", raw)
	}
	scheme = strings.ToLower(scheme)
	switch scheme {
	case "s3", "s3a", "s3n":
	default:
		return Location{}, fmt.Errorf("storage path %q: unsupported scheme %q", raw, scheme)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if strings.TrimSpace(bucket) == "" {
		return Location{}, fmt.Errorf("storage path %q: bucket is required", raw)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

func (l Location) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = "s3"
	}
	return scheme + "://" + l.Bucket + "/" + l.Key
}

// Join appends path elements to the key. A trailing slash on the last
// element is kept so prefixes stay prefixes.
func (l Location) Join(elem ...string) Location {
	if len(elem) == 0 {
		return l
	}
	parts := append([]string{l.Key}, elem...)
	joined := path.Join(parts...)
	joined = strings.TrimPrefix(joined, "/")
	if strings.HasSuffix(elem[len(elem)-1], "/") && joined != "" {
		joined += "/"
	}
	out := l
	out.Key = joined
	return out
}

// Prefix returns the key as a directory prefix (with trailing slash), or an
// empty string for the bucket root.
func (l Location) Prefix() string {
	if l.Key == "" || strings.HasSuffix(l.Key, "/") {
		return l.Key
	}
	return l.Key + "/"
}

// Base returns the last element of the key.
func (l Location) Base() string {
	return path.Base(strings.TrimSuffix(l.Key, "/"))
}
