package tiledbcore

import (
	"fmt"
	"path"
)

// Reserved on-disk file names (spec §6).
const (
	schemaFileName   = "__array_schema.tdb"
	lockFileName     = "__lock.tdb"
	sentinelFileName = "__tiledb_fragment.tdb"
	fragMetaFileName = "__fragment_metadata.tdb"
	coordsFileName   = "__coords.tdb"
)

// FragmentName builds a fragment directory name with the total-order
// timestamp convention from spec §3: "__<process_id>_<millis>[_<extra>]".
func FragmentName(pid int, millis int64, extra string) string {
	if extra == "" {
		return fmt.Sprintf("__%d_%d", pid, millis)
	}
	return fmt.Sprintf("__%d_%d_%s", pid, millis, extra)
}

// fragmentTimestamp extracts the millisecond timestamp from a fragment
// directory name, for total-order comparison between fragments (spec
// §3: "the fragment name's millisecond timestamp defines total order").
func fragmentTimestamp(name string) (int64, bool) {
	var pid int
	var ms int64
	var extra string
	n, err := fmt.Sscanf(name, "__%d_%d_%s", &pid, &ms, &extra)
	if err == nil && n >= 2 {
		return ms, true
	}
	n, err = fmt.Sscanf(name, "__%d_%d", &pid, &ms)
	if err == nil && n == 2 {
		return ms, true
	}
	return 0, false
}

// Fragment is one immutable fragment directory: its metadata plus the
// URIs of its on-disk attribute/coords files (spec §3, §6).
type Fragment struct {
	URI       string
	Name      string
	Timestamp int64
	Meta      *FragmentMetadata
}

// AttrValuesURI returns the on-disk path of attr's fixed/var values file.
func (f *Fragment) AttrValuesURI(attr string) string {
	return path.Join(f.URI, attr+".tdb")
}

// AttrOffsetsURI returns the on-disk path of attr's variable-length
// offsets file.
func (f *Fragment) AttrOffsetsURI(attr string) string {
	return path.Join(f.URI, attr+"_var.tdb")
}

// AttrValidityURI returns the on-disk path of attr's nullable validity file.
func (f *Fragment) AttrValidityURI(attr string) string {
	return path.Join(f.URI, attr+"_validity.tdb")
}

// CoordsURI returns the on-disk path of the sparse coordinates file.
func (f *Fragment) CoordsURI() string {
	return path.Join(f.URI, coordsFileName)
}

// SentinelURI returns the on-disk path of the publication sentinel: its
// presence is what makes a fragment visible to readers (spec §3, §4.8).
func (f *Fragment) SentinelURI() string {
	return path.Join(f.URI, sentinelFileName)
}

// MetaURI returns the on-disk path of the fragment-metadata blob.
func (f *Fragment) MetaURI() string {
	return path.Join(f.URI, fragMetaFileName)
}
