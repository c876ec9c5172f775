package releasecache

import (
	"encoding/json"
	"fmt"
	"time"
)

// migration upgrades a raw cache document from one schema version to the next.
type migration struct {
	from  int
	to    int
	apply func(raw map[string]json.RawMessage) error
}

// migrations is ordered by from version.
var migrations = []migration{
	{from: 1, to: 2, apply: migrateV1ToV2},
}

// migrate runs every applicable migration in order and reports whether the document changed.
func migrate(raw map[string]json.RawMessage) (bool, error) {
	version := schemaVersionOf(raw)
	changed := false
	for _, m := range migrations {
		if version != m.from {
			continue
		}
		if err := m.apply(raw); err != nil {
			return changed, fmt.Errorf("migrate cache v%d to v%d: %w", m.from, m.to, err)
		}
		version = m.to
		encoded, _ := json.Marshal(version)
		raw["schemaVersion"] = encoded
		changed = true
	}
	if version != SchemaVersion {
		return changed, fmt.Errorf("unsupported cache schema version %d", version)
	}
	return changed, nil
}

// schemaVersionOf returns the declared schema version. Documents without one are v1.
func schemaVersionOf(raw map[string]json.RawMessage) int {
	encoded, ok := raw["schemaVersion"]
	if !ok {
		return 1
	}
	var version int
	if err := json.Unmarshal(encoded, &version); err != nil || version <= 0 {
		return 1
	}
	return version
}

// migrateV1ToV2 turns array-valued masterToReleases entries into {releases, fetchedAt},
// using the document's lastUpdated as the approximate fetch time.
func migrateV1ToV2(raw map[string]json.RawMessage) error {
	var lastUpdated time.Time
	if encoded, ok := raw["lastUpdated"]; ok {
		if err := json.Unmarshal(encoded, &lastUpdated); err != nil {
			lastUpdated = time.Time{}
		}
	}

	var legacy map[string][]int
	if encoded, ok := raw["masterToReleases"]; ok {
		if err := json.Unmarshal(encoded, &legacy); err != nil {
			return fmt.Errorf("parse v1 masterToReleases: %w", err)
		}
	}

	upgraded := make(map[string]MasterEntry, len(legacy))
	for masterID, releases := range legacy {
		if releases == nil {
			releases = []int{}
		}
		upgraded[masterID] = MasterEntry{Releases: releases, FetchedAt: lastUpdated}
	}
	encoded, err := json.Marshal(upgraded)
	if err != nil {
		return err
	}
	raw["masterToReleases"] = encoded
	return nil
}
