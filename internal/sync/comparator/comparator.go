// Package comparator decides whether a local asset differs from the remote
// object stored under the same key.
package comparator

import (
	"strings"

	"github.com/kubetraining/sitesync/synctypes"
)

// Comparator compares a local asset with the remote object of the same key.
type Comparator interface {
	// Compare returns whether the asset must be uploaded and why.
	Compare(local synctypes.Asset, remote synctypes.RemoteObject) (synctypes.Reason, bool)
}

// HashComparator compares content MD5s. A remote object without a known
// hash cannot be shown to match, so it always counts as changed.
type HashComparator struct{}

// NewHashComparator creates the default comparator.
func NewHashComparator() *HashComparator {
	return &HashComparator{}
}

// Compare implements Comparator.
func (c *HashComparator) Compare(local synctypes.Asset, remote synctypes.RemoteObject) (synctypes.Reason, bool) {
	if !remote.Verifiable() {
		if local.Size != remote.Size {
			return synctypes.ReasonModified, true
		}
		return synctypes.ReasonUnverifiable, true
	}

	if !strings.EqualFold(local.Hash, remote.Hash) {
		return synctypes.ReasonModified, true
	}

	return "", false
}
