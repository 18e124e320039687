// Package synctypes contains the types shared by the planner, the executor
// and the pipeline: local assets, remote objects, the upload manifest,
// environment targets and the result of a sync.
package synctypes

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Object metadata keys written on every upload.
const (
	// MetadataContentMD5 holds the lower-case hex MD5 of the uploaded content.
	MetadataContentMD5 = "content-md5"

	// MetadataSourceRevision holds the commit the site was built from.
	MetadataSourceRevision = "source-revision"
)

// Asset is a single file produced by the build stage.
type Asset struct {
	// Key is the slash-separated path relative to the build output root
	Key string `json:"key"`

	// Path is the path of the file on the scanned filesystem
	Path string `json:"-"`

	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`

	// Hash is the lower-case hex MD5 of the content
	Hash string `json:"hash"`

	ContentType string `json:"content_type,omitempty"`
}

// RemoteObject is the store's current record for a key under the target prefix.
type RemoteObject struct {
	// Key is relative to the target prefix
	Key string

	// FullKey is the key in the bucket
	FullKey string

	// ETag is the store ETag without quotes
	ETag string

	// Hash is the content MD5, or empty when it cannot be determined
	Hash string

	Size         int64
	LastModified time.Time
}

// Verifiable reports whether the object's content hash is known.
func (o RemoteObject) Verifiable() bool {
	return o.Hash != ""
}

// IsMD5Hex reports whether s is a 32 character hex string.
func IsMD5Hex(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// IsOpaqueETag reports whether an ETag is not a plain content MD5, as for
// multipart uploads ("<hex>-<parts>") and some encryption modes.
func IsOpaqueETag(etag string) bool {
	return strings.Contains(etag, "-") || !IsMD5Hex(etag)
}

// Reason explains why an asset is in the manifest.
type Reason string

const (
	// ReasonNew means no remote object exists for the key.
	ReasonNew Reason = "new"

	// ReasonModified means the remote object's hash differs.
	ReasonModified Reason = "modified"

	// ReasonUnverifiable means the remote object's hash cannot be determined.
	ReasonUnverifiable Reason = "unverifiable"
)

// ManifestEntry is one asset to upload.
type ManifestEntry struct {
	Asset  Asset  `json:"asset"`
	Reason Reason `json:"reason"`
}

// Manifest is the ordered set of assets a run must upload.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

// Len returns the number of entries.
func (m Manifest) Len() int {
	return len(m.Entries)
}

// Empty reports whether nothing needs uploading.
func (m Manifest) Empty() bool {
	return len(m.Entries) == 0
}

// Keys returns the entry keys in manifest order.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		keys = append(keys, e.Asset.Key)
	}
	return keys
}

// TotalBytes returns the sum of the entry sizes.
func (m Manifest) TotalBytes() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Asset.Size
	}
	return total
}

// KeyFailure records an upload that did not succeed.
type KeyFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`

	// Code is the error code of the last attempt
	Code string `json:"code,omitempty"`

	// Attempts is the number of PUT calls made for the key
	Attempts int `json:"attempts"`

	// Transient is true when the retry budget ran out on a transient error
	Transient bool `json:"transient"`
}

// SyncResult is the outcome of executing a manifest.
type SyncResult struct {
	Succeeded []string     `json:"succeeded"`
	Failed    []KeyFailure `json:"failed"`

	// NotAttempted lists keys never dispatched because the run was cancelled
	NotAttempted []string `json:"not_attempted"`

	BytesUploaded int64         `json:"bytes_uploaded"`
	Duration      time.Duration `json:"duration"`
}

// Success reports whether every entry was uploaded.
func (r *SyncResult) Success() bool {
	return len(r.Failed) == 0 && len(r.NotAttempted) == 0
}

// Summary returns a one-line description for logs.
func (r *SyncResult) Summary() string {
	return fmt.Sprintf("%d uploaded, %d failed, %d not attempted, %d bytes in %s",
		len(r.Succeeded), len(r.Failed), len(r.NotAttempted), r.BytesUploaded, r.Duration.Round(time.Millisecond))
}
