// Package indexmerge merges the per-document indexes of sealed segments
// into new target segments.
//
// A merge task names a set of source segments, the target segments they
// are rewritten into and a DocMapper that routes every surviving document
// to its new (segment, doc id). Deleted documents are dropped. The task
// merges every index of the schema:
//
//   - attributes: fixed-width single values (optionally sliced across
//     writers) and variable-length multi values, with uniq dedup and
//     patch files applied;
//   - source: every source group plus the meta column;
//   - summary: every summary group.
//
// # Quick Start
//
//	plan := &indexmerge.Plan{
//	    Schema:        schema,
//	    Infos:         segment.NewMergeInfos(sources, targets),
//	    DocMapperName: "merge_plan_docmapper",
//	    Resources:     taskres.NewManager(resourceDir),
//	}
//	res, err := indexmerge.Run(ctx, plan,
//	    indexmerge.WithLogger(indexmerge.NewJSONLogger(slog.LevelInfo)),
//	    indexmerge.WithResourceController(resource.NewController(resource.Config{
//	        MemoryLimitBytes:    1 << 30,
//	        MaxConcurrentMerges: 4,
//	    })),
//	)
//
// # Storage
//
// Segments live in a blobstore: a local directory, S3 or MinIO. See
// StoreOpener for the URI forms the command line tool accepts.
//
// # Errors
//
// Every error wraps one of the kinds in package status. Run reports the
// failing index with *MergeError:
//
//	var me *indexmerge.MergeError
//	if errors.As(err, &me) && errors.Is(err, status.ErrCorruption) {
//	    log.Printf("index %s of plan is corrupt", me.Index)
//	}
package indexmerge
