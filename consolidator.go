package tiledbcore

import (
	"context"
)

// Consolidator merges a window of an array's fragments into one new
// fragment and removes the originals (spec §4.10). Grounded on
// original_source/core/src/storage_manager/consolidator.cc's
// read-into-buffers / write-out / exclusive-lock-delete shape.
type Consolidator struct {
	ctx *Context
}

// NewConsolidator returns a Consolidator operating under ctx.
func NewConsolidator(ctx *Context) *Consolidator {
	return &Consolidator{ctx: ctx}
}

// Consolidate picks a window of [step_min_frags, step_max_frags] of the
// array's oldest fragments (spec §4.10, config keys
// sm.consolidation.step_min_frags/step_max_frags) and merges them into
// a single new fragment with a timestamp newer than every input, then
// deletes the inputs. A window smaller than step_min_frags is left
// alone.
func (co *Consolidator) Consolidate(ctx context.Context, uri string) error {
	arr, err := OpenArray(ctx, co.ctx, uri, OpenRead)
	if err != nil {
		return err
	}
	defer arr.Close()

	minFragsI64, err := co.ctx.Config.GetInt("sm.consolidation.step_min_frags")
	if err != nil {
		return err
	}
	maxFragsI64, err := co.ctx.Config.GetInt("sm.consolidation.step_max_frags")
	if err != nil {
		return err
	}
	minFrags, maxFrags := int(minFragsI64), int(maxFragsI64)

	frags, err := arr.Fragments(ctx)
	if err != nil {
		return err
	}
	if len(frags) < minFrags {
		return nil
	}

	window := frags
	if len(window) > maxFrags {
		window = window[:maxFrags]
	}
	if len(window) < minFrags {
		return nil
	}

	uris := make([]string, len(window))
	var totalCells uint64
	for i, f := range window {
		uris[i] = f.URI
		meta, err := loadFragmentMeta(ctx, co.ctx, f, arr.Schema.Domain)
		if err != nil {
			return err
		}
		totalCells += meta.CellCount
	}
	if totalCells == 0 {
		return nil
	}

	schema := arr.Schema
	dom := schema.Domain

	rq, err := NewQuery(arr, QueryRead)
	if err != nil {
		return err
	}
	rq.restrictToFragments(uris)
	if err := rq.SetLayout(LayoutGlobalOrder); err != nil {
		return err
	}

	dimBufs := make(map[string][]byte)
	for _, d := range dom.Dimensions {
		width := d.Type.Size()
		if width == 0 {
			width = 1
		}
		buf := make([]byte, int(totalCells)*width)
		dimBufs[d.Name] = buf
		rq.SetDataBuffer(d.Name, buf)
	}
	attrBufs := make(map[string][]byte)
	for _, a := range schema.Attributes {
		width := a.Type.Size()
		if width == 0 {
			width = 1
		}
		buf := make([]byte, int(totalCells)*width)
		attrBufs[a.Name] = buf
		rq.SetDataBuffer(a.Name, buf)
	}

	for {
		status, err := rq.Submit(ctx)
		if err != nil {
			return err
		}
		if status != StatusIncomplete {
			break
		}
	}

	warr, err := OpenArray(ctx, co.ctx, uri, OpenWrite)
	if err != nil {
		return err
	}
	defer warr.Close()

	wq, err := NewQuery(warr, QueryWrite)
	if err != nil {
		return err
	}
	if err := wq.SetLayout(LayoutGlobalOrder); err != nil {
		return err
	}
	for name, buf := range dimBufs {
		wq.SetDataBuffer(name, trimToWritten(rq, name, buf))
	}
	for name, buf := range attrBufs {
		wq.SetDataBuffer(name, trimToWritten(rq, name, buf))
	}
	if _, err := wq.Submit(ctx); err != nil {
		return err
	}
	if err := wq.Finalize(ctx); err != nil {
		return err
	}

	if err := arr.locked.Lock(ctx, co.ctx.FS, uri, false); err != nil {
		return err
	}
	defer arr.locked.Unlock(co.ctx.FS, uri, false)
	for _, u := range uris {
		if err := co.ctx.FS.RemovePath(ctx, u); err != nil {
			return WrapError(ConsolidationError, "remove consolidated fragment", err)
		}
	}
	return nil
}

// trimToWritten slices buf down to the bytes the read query actually
// filled for name, since the merged cell count (after latest-wins
// dedup) can be smaller than the worst-case totalCells buffers were
// sized for.
func trimToWritten(rq *Query, name string, buf []byte) []byte {
	if pb, ok := rq.dataBuffers[name]; ok {
		return buf[:pb.Size()]
	}
	return buf
}
