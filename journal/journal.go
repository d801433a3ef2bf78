// Package journal records finished edit sessions in a Lode dataset.
//
// Records are JSONL, Hive-partitioned by day and outcome:
//
//	<dataset>/day=2026-10-17/outcome=success/...
//
// Each finished session writes one session record and one metrics record
// in a single snapshot. The journal is local bookkeeping only: nothing in
// it is sent to the edit server.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/overdub/metrics"
	"github.com/justapithecus/overdub/types"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "overdub"

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// partitionKeys is the Hive layout shared by the read and write paths.
var partitionKeys = []string{"day", "outcome"}

// Journal is a Lode-backed session journal.
type Journal struct {
	dataset lode.Dataset
	name    string
	metrics *metrics.Collector
}

// Option configures a Journal.
type Option func(*Journal)

// WithMetrics records journal write outcomes in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(j *Journal) { j.metrics = m }
}

// New opens the journal dataset on the given store factory.
// Tests open it on an in-memory store.
func New(dataset string, factory lode.StoreFactory, opts ...Option) (*Journal, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapError("init", dataset, err)
	}

	j := &Journal{dataset: ds, name: dataset}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// NewFS opens a journal stored under root on the local filesystem.
func NewFS(dataset, root string, opts ...Option) (*Journal, error) {
	return New(dataset, lode.NewFSFactory(root), opts...)
}

// Record writes the session record and, when snap is non-nil, the metrics
// snapshot taken after the session.
func (j *Journal) Record(ctx context.Context, rec *SessionRecord, snap *metrics.Snapshot) error {
	records := []any{toSessionRecordMap(rec)}
	if snap != nil {
		records = append(records, toMetricsRecordMap(rec, *snap))
	}

	if _, err := j.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		j.metrics.IncJournalWriteFailure()
		return wrapError("write", j.name, err)
	}
	j.metrics.IncJournalWriteSuccess()
	return nil
}

// Filter narrows ListSessions. Zero values match everything.
type Filter struct {
	Day     string
	Outcome types.OutcomeStatus
	// Limit caps the number of records returned; 0 means no limit.
	Limit int
}

// ListSessions returns journaled sessions, most recently finished first.
func (j *Journal) ListSessions(ctx context.Context, f Filter) ([]SessionRecord, error) {
	snapshots, err := j.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	var out []SessionRecord
	for _, snap := range snapshots {
		if !snapshotMatches(snap, "day", f.Day) || !snapshotMatches(snap, "outcome", string(f.Outcome)) {
			continue
		}
		data, err := j.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError("read", fmt.Sprintf("%s/snapshot/%s", j.name, snap.ID), err)
		}
		// Partition paths are a coarse pre-filter; record fields decide.
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindSession {
				continue
			}
			rec := fromSessionRecordMap(m)
			if f.Day != "" && rec.Day() != f.Day {
				continue
			}
			if f.Outcome != "" && rec.Outcome != f.Outcome {
				continue
			}
			out = append(out, rec)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].FinishedAt.After(out[b].FinishedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// LatestMetrics returns the most recent metrics record.
func (j *Journal) LatestMetrics(ctx context.Context) (map[string]any, error) {
	snapshots, err := j.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	var latest map[string]any
	var latestTs string
	for _, snap := range snapshots {
		data, err := j.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError("read", fmt.Sprintf("%s/snapshot/%s", j.name, snap.ID), err)
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindMetrics {
				continue
			}
			// RFC 3339 timestamps in UTC sort lexically.
			if ts := toString(m["ts"]); latest == nil || ts >= latestTs {
				latest, latestTs = m, ts
			}
		}
	}
	if latest == nil {
		return nil, ErrNoMetricsFound
	}
	return latest, nil
}

// snapshots lists the dataset snapshots. A dataset that was never written
// has none.
func (j *Journal) snapshots(ctx context.Context) ([]*lode.DatasetSnapshot, error) {
	snapshots, err := j.dataset.Snapshots(ctx)
	if err != nil {
		werr := wrapError("read", j.name+"/snapshots", err)
		if errors.Is(werr, ErrNotFound) {
			return nil, nil
		}
		return nil, werr
	}
	return snapshots, nil
}

// Close releases journal resources.
func (j *Journal) Close() error {
	return nil
}

// snapshotMatches reports whether any file of the snapshot lies in the
// key=value partition. An empty value matches every snapshot.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}
