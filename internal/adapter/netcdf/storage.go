// Package netcdf implements the storage ports over github.com/batchatco/go-native-netcdf.
// Sources may be classic CDF or netCDF-4 (HDF5) files; outputs are written as
// classic CDF.
package netcdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/batchatco/go-native-netcdf/netcdf"

	"github.com/couchcryptid/hydro-etl/internal/domain"
)

// CacheLimits bounds the read cache of each opened dataset. Zero fields use defaults.
type CacheLimits struct {
	Blocks int // cached variables
	Values int // cached float64 values across variables
}

// Storage opens and creates netCDF files on the local filesystem.
type Storage struct {
	cache CacheLimits
}

// NewStorage returns a filesystem-backed storage with default cache limits.
func NewStorage() *Storage { return &Storage{} }

// NewStorageWithCache returns a storage whose datasets use the given cache limits.
func NewStorageWithCache(limits CacheLimits) *Storage { return &Storage{cache: limits} }

// Open opens the netCDF file at path.
func (s *Storage) Open(path string) (domain.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.SourceNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	group, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newDataset(path, group, s.cache), nil
}

// Create starts an output at path. The parent directory is created if needed.
func (s *Storage) Create(path string) (domain.DatasetWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory for %s: %w", path, err)
	}
	return newWriter(path), nil
}
