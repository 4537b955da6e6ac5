package tiledbcore

import "context"

// Query is the shared state machine behind both reads and writes (spec
// §4.7, §4.8, §6 query_new/query_submit/query_finalize). A Query is
// created against an open Array, configured with SetLayout/
// SetSubarray/SetDataBuffer, then driven to completion via repeated
// Submit calls (handling INCOMPLETE) and a final Finalize.
type Query struct {
	Array  *Array
	Type   QueryType
	Layout Layout
	Status QueryStatus

	Subarray *NDRectangle

	// fragmentFilter restricts a read query to a specific set of
	// fragment URIs when non-nil, used by the consolidator to read
	// only the fragments it is merging (spec §4.10).
	fragmentFilter map[string]bool

	dataBuffers     map[string]*PreallocatedBuffer
	offsetsBuffers  map[string]*PreallocatedBuffer
	validityBuffers map[string]*PreallocatedBuffer

	// cursor resumes an INCOMPLETE read (spec §4.7 step 6): index into
	// the planned cell sequence of the next cell to emit.
	cursor int

	reader *readerState
	writer *writerState
}

// NewQuery creates a query of the given type against arr.
func NewQuery(arr *Array, typ QueryType) (*Query, error) {
	if !arr.IsOpen() {
		return nil, ErrArrayNotOpen
	}
	if typ == QueryRead && arr.Mode != OpenRead {
		return nil, WrapError(QueryError, "read query requires array opened for read", ErrWrongQueryType)
	}
	if typ == QueryWrite && arr.Mode != OpenWrite {
		return nil, WrapError(QueryError, "write query requires array opened for write", ErrWrongQueryType)
	}
	return &Query{
		Array:           arr,
		Type:            typ,
		Status:          StatusUninitialized,
		dataBuffers:     make(map[string]*PreallocatedBuffer),
		offsetsBuffers:  make(map[string]*PreallocatedBuffer),
		validityBuffers: make(map[string]*PreallocatedBuffer),
	}, nil
}

// SetLayout sets the query's requested layout, validating it is legal
// for the array/query type combination (spec §4.7 step 5, §4.8).
func (q *Query) SetLayout(l Layout) error {
	if q.Array.Schema.Type == Dense && l == LayoutUnordered {
		return WrapError(QueryError, "UNORDERED layout is sparse-only", ErrWrongLayout)
	}
	q.Layout = l
	return nil
}

// SetSubarray restricts the query to sr (spec §6 query_set_subarray).
func (q *Query) SetSubarray(sr *NDRectangle) {
	q.Subarray = sr
}

// restrictToFragments limits a read query to the given fragment URIs.
// Unexported: only the consolidator needs this, to read exactly the
// fragment set it is merging rather than the array's whole history.
func (q *Query) restrictToFragments(uris []string) {
	m := make(map[string]bool, len(uris))
	for _, u := range uris {
		m[u] = true
	}
	q.fragmentFilter = m
}

// SetDataBuffer attaches the caller-owned buffer backing attr's values
// (spec §6 query_set_data_buffer). On a write query buf already holds
// the values to persist, so it is treated as pre-filled; on a read
// query it is an empty output target the reader writes into.
func (q *Query) SetDataBuffer(name string, buf []byte) {
	q.dataBuffers[name] = q.wrapBuffer(buf)
}

// SetOffsetsBuffer attaches the caller-owned buffer backing a
// variable-length attribute's offsets (spec §6 query_set_offsets_buffer).
func (q *Query) SetOffsetsBuffer(name string, buf []byte) {
	q.offsetsBuffers[name] = q.wrapBuffer(buf)
}

// SetValidityBuffer attaches the caller-owned buffer backing a nullable
// attribute's validity bitmap (spec §6 query_set_validity_buffer).
func (q *Query) SetValidityBuffer(name string, buf []byte) {
	q.validityBuffers[name] = q.wrapBuffer(buf)
}

// wrapBuffer wraps buf as a PreallocatedBuffer, marking it fully
// written for write queries (the caller already populated it) and
// empty for read queries (the reader populates it as output).
func (q *Query) wrapBuffer(buf []byte) *PreallocatedBuffer {
	p := NewPreallocatedBuffer(buf)
	if q.Type == QueryWrite {
		p.SetSize(len(buf))
	}
	return p
}

// Submit advances the query, returning its resulting status. Read
// queries may return StatusIncomplete and must be resubmitted with the
// same (or larger) buffers to continue (spec §4.7 step 6); write
// queries consume submitted cells immediately and normally complete in
// one call.
func (q *Query) Submit(ctx context.Context) (QueryStatus, error) {
	if q.Status == StatusCompleted {
		return q.Status, WrapError(QueryError, "query already completed", ErrFinalizeNotSubmit)
	}
	var err error
	switch q.Type {
	case QueryRead:
		err = q.submitRead(ctx)
	case QueryWrite:
		err = q.submitWrite(ctx)
	}
	if err != nil {
		q.Status = StatusFailed
		return q.Status, err
	}
	return q.Status, nil
}

// Finalize completes the query, flushing any buffered writer state to
// a published fragment. Calling Finalize without ever Submitting is an
// error for write queries (spec §4.8 step 4, §7 "finalize-without-submit").
func (q *Query) Finalize(ctx context.Context) error {
	if q.Type == QueryWrite {
		if q.writer == nil {
			return WrapError(QueryError, "finalize called before submit", ErrFinalizeNotSubmit)
		}
		if err := q.writer.finalize(ctx, q); err != nil {
			q.Status = StatusFailed
			return err
		}
	}
	q.Status = StatusCompleted
	return nil
}
