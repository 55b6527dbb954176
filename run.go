package indexmerge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/indexmerge/docmapper"
	"github.com/hupe1980/indexmerge/segment"
	"github.com/hupe1980/indexmerge/status"
)

// bytesReporter is implemented by mergers that count their output.
type bytesReporter interface {
	BytesWritten() uint64
}

// Run merges every index of plan.Schema from the source segments into the
// target segments and then seals each target with its segment_info.
//
// Index mergers run concurrently, bounded by WithConcurrency and by the
// merge slots and memory of the resource controller. Each merger is
// admitted with its memory estimate. The first failure cancels the other
// mergers and is returned as a *MergeError; no segment_info is written
// then, so a failed run leaves no sealed target behind.
//
// Run is idempotent: repeating it with the same plan rewrites the same
// bytes.
func Run(ctx context.Context, plan *Plan, optFns ...Option) (*Result, error) {
	o := applyOptions(optFns)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := o.logger
	if plan.Name != "" {
		log = log.WithTask(plan.Name)
	}

	tasks, err := plan.tasks(&o)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidArgs, ErrEmptyPlan)
	}

	mapper, err := plan.Resources.LoadDocMapper(ctx, plan.DocMapperName)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return nil, status.Corruptionf("doc mapper %s: %v", plan.DocMapperName, err)
		}
		return nil, err
	}

	result := &Result{Indexes: make([]IndexResult, len(tasks))}
	for i := range tasks {
		est := tasks[i].merger.EstimateMemoryUse(plan.Infos)
		result.Indexes[i] = IndexResult{Name: tasks[i].name, Kind: tasks[i].kind, EstimatedMemory: est}
		result.EstimatedMemory += est
	}
	log.InfoContext(ctx, "merge plan started",
		"segments", plan.Infos.String(),
		"indexes", len(tasks),
		"docs", mapper.GetNewDocCount(),
		"estimated_memory", result.EstimatedMemory,
		"concurrency", o.concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range tasks {
		t, ir := &tasks[i], &result.Indexes[i]
		g.Go(func() error {
			return runTask(gctx, plan, &o, log.WithIndex(t.kind, t.name), t, ir, mapper)
		})
	}
	if err := g.Wait(); err != nil {
		log.ErrorContext(ctx, "merge plan failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	result.Targets, err = writeTargets(ctx, plan, tasks, mapper)
	log.LogTargets(ctx, result.Targets, err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	log.InfoContext(ctx, "merge plan finished", "targets", len(result.Targets), "duration", result.Duration)
	return result, nil
}

func runTask(ctx context.Context, plan *Plan, o *options, log *Logger, t *task, ir *IndexResult, mapper docmapper.DocMapper) error {
	release, err := o.resource.Admit(ctx, ir.EstimatedMemory)
	if err != nil {
		return newMergeError(t, err)
	}
	defer release()

	if tr, ok := o.metrics.(inflightTracker); ok {
		tr.started()
		defer tr.finished()
	}

	log.LogMergeStart(ctx, t.kind, t.name, plan.Infos.String(), ir.EstimatedMemory)
	start := time.Now()
	err = t.merger.Merge(ctx, plan.Infos, plan.Resources)
	ir.Duration = time.Since(start)
	o.metrics.OnIndexMerge(t.name, t.kind, ir.Duration, err)
	log.LogMergeDone(ctx, t.kind, t.name, mapper.GetNewDocCount(), ir.Duration, err)
	if err != nil {
		return newMergeError(t, err)
	}
	if br, ok := t.merger.(bytesReporter); ok {
		ir.BytesWritten = br.BytesWritten()
		o.metrics.OnMergeBytes(t.name, t.kind, ir.BytesWritten)
	}
	return nil
}

// writeTargets seals every target segment with the merged index keys and
// its document count from the doc mapper.
func writeTargets(ctx context.Context, plan *Plan, tasks []task, mapper docmapper.DocMapper) ([]TargetResult, error) {
	keys := make([]string, 0, len(tasks))
	for _, t := range tasks {
		keys = append(keys, t.indexKey)
	}
	out := make([]TargetResult, 0, len(plan.Infos.TargetSegments))
	for _, meta := range plan.Infos.TargetSegments {
		info := segment.Info{
			SegmentID: meta.ID,
			DocCount:  mapper.GetTargetSegmentDocCount(meta.ID),
			Indexes:   keys,
		}
		if err := segment.WriteInfo(ctx, meta.Dir, info); err != nil {
			return out, err
		}
		// Re-read to report the normalized index list.
		written, err := segment.ReadInfo(ctx, meta.Dir)
		if err != nil {
			return out, err
		}
		out = append(out, TargetResult{SegmentID: written.SegmentID, DocCount: written.DocCount, Indexes: written.Indexes})
	}
	return out, nil
}
