package eventsourcing

import "math"

// KeepForever is the dedup window value meaning "never expire". Used as a
// SnapshotEvery value it is never reached, so no snapshot is written.
const KeepForever int64 = math.MaxInt64

// Config supplies the per-aggregate-type tuning the runtime needs: how long
// a processed command id is remembered for deduplication, and how often a
// snapshot is written.
type Config interface {
	// DedupWindow returns how many events back a command id is still
	// recognized as a duplicate. 0 disables deduplication entirely.
	DedupWindow(aggregateType string) int64

	// SnapshotEvery returns the number of events between snapshot writes. 0
	// disables snapshotting.
	SnapshotEvery(aggregateType string) int64
}

// StaticConfig is a Config backed by a fixed map of per-aggregate-type
// settings, with a fallback applied to any aggregate type not listed.
type StaticConfig struct {
	Default  AggregateConfig
	PerType  map[string]AggregateConfig
}

// AggregateConfig is the dedup/snapshot tuning for one aggregate type.
type AggregateConfig struct {
	DedupWindow   int64
	SnapshotEvery int64
}

func (c StaticConfig) forType(aggregateType string) AggregateConfig {
	if cfg, ok := c.PerType[aggregateType]; ok {
		return cfg
	}
	return c.Default
}

func (c StaticConfig) DedupWindow(aggregateType string) int64 {
	return c.forType(aggregateType).DedupWindow
}

func (c StaticConfig) SnapshotEvery(aggregateType string) int64 {
	return c.forType(aggregateType).SnapshotEvery
}

var _ Config = StaticConfig{}
