// Package store implements the durable state of the pipeline: queryable
// audit records, file metadata with checksum uniqueness, and review cases.
// An in-memory implementation backs tests and single-shot CLI runs; SQLite
// covers embedded deployments and Postgres covers server deployments.
package store

import (
	"errors"
	"sort"

	"github.com/meridian-compliance/oficios/pkg/audit"
)

var (
	// ErrNotFound reports a missing row for a point lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateChecksum reports an attempt to persist a second file
	// with an already-stored content checksum.
	ErrDuplicateChecksum = errors.New("duplicate checksum")
)

// sortRecords orders audit records by Timestamp ascending, ties broken by
// AuditID. Every backend funnels query results through this so ordering does
// not depend on engine collation.
func sortRecords(recs []audit.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].AuditID < recs[j].AuditID
		}
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
}
