// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package createtable holds the cleanup hook called by CREATE TABLE AS when
// the statement fails after it started writing the new table.
package createtable

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/vexec/pkg/util/log"
	"github.com/spf13/afero"
)

// TableKey is the namespace path of a table.
type TableKey []string

// String implements the fmt.Stringer interface.
func (k TableKey) String() string { return strings.Join(k, ".") }

// CatalogHandle is the part of the catalog the cleanup hook needs.
type CatalogHandle interface {
	// DropTable removes the table from an external metastore.
	DropTable(ctx context.Context, key TableKey) error
	// ForgetTable removes the table from the catalog without touching its
	// data.
	ForgetTable(ctx context.Context, key TableKey) error
}

// Location is where the partially written table lives.
type Location struct {
	FS   afero.Fs
	Path string
	// FileSystemBacked is set if the table is only known to the catalog and
	// not to an external metastore.
	FileSystemBacked bool
}

// Handler removes the output of a failed CREATE TABLE AS. Cleanup never
// returns an error and never panics; failures are logged. It may be called
// more than once for the same table.
type Handler interface {
	Cleanup(ctx context.Context, loc Location, key TableKey, catalog CatalogHandle)
}

// Strategy is a cleanup implementation that may fail.
type Strategy interface {
	Cleanup(ctx context.Context, loc Location, key TableKey, catalog CatalogHandle) error
}

// DefaultStrategy deletes the location and then drops the table from the
// metastore, or forgets it if the table is only backed by the file system.
type DefaultStrategy struct{}

var _ Strategy = DefaultStrategy{}

// Cleanup implements the Strategy interface.
func (DefaultStrategy) Cleanup(
	ctx context.Context, loc Location, key TableKey, catalog CatalogHandle,
) error {
	if loc.FS != nil && loc.Path != "" {
		// RemoveAll succeeds if the path does not exist.
		if err := loc.FS.RemoveAll(loc.Path); err != nil {
			return errors.Wrapf(err, "deleting %s", loc.Path)
		}
	}
	if catalog == nil {
		return nil
	}
	if loc.FileSystemBacked {
		return errors.Wrapf(catalog.ForgetTable(ctx, key), "forgetting table %s", key)
	}
	return errors.Wrapf(catalog.DropTable(ctx, key), "dropping table %s", key)
}

type handler struct {
	strategy Strategy
}

// NewHandler returns a Handler running strategy. A nil strategy means
// DefaultStrategy.
func NewHandler(strategy Strategy) Handler {
	if strategy == nil {
		strategy = DefaultStrategy{}
	}
	return &handler{strategy: strategy}
}

// Cleanup implements the Handler interface.
func (h *handler) Cleanup(ctx context.Context, loc Location, key TableKey, catalog CatalogHandle) {
	defer func() {
		if r := recover(); r != nil {
			log.Warningf(ctx, "cleanup failed for CTAS of %s: %v", redact.Safe(key.String()), r)
		}
	}()
	if err := h.strategy.Cleanup(ctx, loc, key, catalog); err != nil {
		log.Warningf(ctx, "cleanup failed for CTAS of %s: %v", redact.Safe(key.String()), err)
	}
}
