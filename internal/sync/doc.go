// Package sync reconciles remote Are.na channels into the local document
// store.
//
// Overview
//
// For every configured channel the engine walks the remote pages in order and
// decides, per block, whether to create, update or skip the matching local
// document:
//
//	ContentSource (paged channel API)
//	     └── Block ──► fingerprint / image signature
//	                        │
//	                        ▼
//	             create │ patch │ skip     (ownership + lock flags)
//	                        │
//	                        ▼
//	              DocumentStore (documents, assets)
//
// After paging, documents that still claim membership in the channel but
// were not seen in this pass lose that membership entry; a document left with
// no channels is flagged as an orphan.
//
// Ownership
//
// Each document carries syncPolicy.owner, a map from field name to "studio"
// or "arena". Fields owned by "studio" are never written by the engine.
// lockAll freezes the whole document, lockImage freezes only mainImage.
//
// Resilience
//
// Every page fetch, store write and asset upload runs under a per-call
// timeout and linear-backoff retry (internal/resilience). Point reads of
// existing documents are only timed; a failed read is treated as "absent".
// A soft time budget is checked before each item, page, channel and before
// drift cleanup.
//
// Usage
//
//	st, err := store.Open(".arena-sync/documents.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	opts := sync.DefaultOptions()
//	opts.Channels = []string{"my-channel"}
//	res, err := sync.Run(ctx, arena.NewClient(token), st, opts)
//
// Telemetry
//
// The only observability surface is the Event stream delivered to
// Options.OnLog. Every event carries the run id.
package sync
