// Package planner turns a local scan and a remote listing into the upload
// manifest of a run. It never plans deletions: remote objects without a
// local counterpart are left alone.
package planner

import (
	"sort"

	"github.com/kubetraining/sitesync/internal/sync/comparator"
	"github.com/kubetraining/sitesync/synctypes"
)

// Planner computes manifests with a configurable comparator.
type Planner struct {
	comparator comparator.Comparator
}

// NewPlanner creates a new planner with the given comparator.
func NewPlanner(comp comparator.Comparator) *Planner {
	if comp == nil {
		comp = comparator.NewHashComparator()
	}
	return &Planner{comparator: comp}
}

// ComputeManifest computes the manifest with the default hash comparator.
func ComputeManifest(localAssets []synctypes.Asset, remoteObjects []synctypes.RemoteObject) synctypes.Manifest {
	return NewPlanner(nil).ComputeManifest(localAssets, remoteObjects)
}

// ComputeManifest returns an entry for every local asset that has no remote
// object with the same key or whose remote object differs. Entries are
// sorted by key. Remote objects are only ever looked up, so keys present
// remotely but absent locally never reach the manifest.
func (p *Planner) ComputeManifest(
	localAssets []synctypes.Asset,
	remoteObjects []synctypes.RemoteObject,
) synctypes.Manifest {
	remoteByKey := make(map[string]synctypes.RemoteObject, len(remoteObjects))
	for _, obj := range remoteObjects {
		remoteByKey[obj.Key] = obj
	}

	entries := make([]synctypes.ManifestEntry, 0)
	for _, asset := range localAssets {
		remote, exists := remoteByKey[asset.Key]
		if !exists {
			entries = append(entries, synctypes.ManifestEntry{Asset: asset, Reason: synctypes.ReasonNew})
			continue
		}

		if reason, changed := p.comparator.Compare(asset, remote); changed {
			entries = append(entries, synctypes.ManifestEntry{Asset: asset, Reason: reason})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Asset.Key < entries[j].Asset.Key
	})

	return synctypes.Manifest{Entries: entries}
}

// ReasonStats counts the entries planned for one reason.
type ReasonStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// ManifestStats summarises a manifest.
type ManifestStats struct {
	Entries  int                              `json:"entries"`
	Bytes    int64                            `json:"bytes"`
	ByReason map[synctypes.Reason]ReasonStats `json:"by_reason"`
}

// Stats summarises entries and bytes per reason.
func Stats(m synctypes.Manifest) ManifestStats {
	stats := ManifestStats{ByReason: make(map[synctypes.Reason]ReasonStats)}
	for _, e := range m.Entries {
		stats.Entries++
		stats.Bytes += e.Asset.Size

		rs := stats.ByReason[e.Reason]
		rs.Count++
		rs.Bytes += e.Asset.Size
		stats.ByReason[e.Reason] = rs
	}
	return stats
}
