// Package loadtest exercises the document store under concurrent access.
//
// It populates a store with synthetic block documents spread across
// channels, then runs concurrent readers issuing the channel membership
// query the drift pass uses, optionally alongside writers patching documents
// the way a sync pass does.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/arenasync/arenasync/internal/store"
)

const docType = "areNaBlock"

// TestStore is a populated store for load testing.
type TestStore struct {
	Store    *store.Store
	DocIDs   []string
	Channels []string
	// Members maps channel slug to the number of documents in it.
	Members map[string]int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

// CreateTestStore creates a store at path holding numDocs block documents
// spread over numChannels channels. Roughly a third of the documents belong
// to two channels.
func CreateTestStore(path string, numDocs, numChannels int) (*TestStore, error) {
	if numDocs <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("numDocs and numChannels must be positive")
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// More connections for concurrent readers
	st.RawDB().SetMaxOpenConns(64)
	st.RawDB().SetMaxIdleConns(16)

	ts := &TestStore{
		Store:   st,
		DocIDs:  make([]string, 0, numDocs),
		Members: make(map[string]int, numChannels),
	}
	for i := 0; i < numChannels; i++ {
		ts.Channels = append(ts.Channels, fmt.Sprintf("channel-%02d", i))
	}

	ctx := context.Background()
	for _, doc := range generateDocuments(numDocs, ts.Channels) {
		if err := st.Create(ctx, doc); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to insert %s: %w", doc.ID(), err)
		}
		ts.DocIDs = append(ts.DocIDs, doc.ID())
		for _, ch := range doc["channels"].([]any) {
			ts.Members[ch.(map[string]any)["slug"].(string)]++
		}
	}

	return ts, nil
}

// Close closes the store.
func (ts *TestStore) Close() error {
	if ts.Store != nil {
		return ts.Store.Close()
	}
	return nil
}

// RunConcurrentQueries runs numReaders goroutines, each issuing
// queriesPerReader membership queries over the channels in turn.
func (ts *TestStore) RunConcurrentQueries(numReaders, queriesPerReader int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numReaders)
	errorsChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerReader)
			ctx := context.Background()

			for j := 0; j < queriesPerReader; j++ {
				slug := ts.Channels[(reader+j)%len(ts.Channels)]

				start := time.Now()
				docs, err := ts.Store.FindByChannel(ctx, docType, slug)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("reader %d query %d failed: %w", reader, j, err)
					break
				}
				if len(docs) != ts.Members[slug] {
					errorsChan <- fmt.Errorf("reader %d: %s returned %d documents, want %d", reader, slug, len(docs), ts.Members[slug])
					break
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no queries completed")
	}

	stats := computeLatencyStats(allDurations)
	for range errorsChan {
		stats.Errors++
	}
	return stats, nil
}

// RunMixedWorkload runs readers and patch writers concurrently for duration.
// Writers touch lastSyncedAt only, so membership counts stay stable and
// every reader result can be checked.
func (ts *TestStore) RunMixedWorkload(numReaders, numWriters int, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	errorsChan := make(chan error, numReaders+numWriters)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(reader int) {
			defer wg.Done()
			for j := 0; ctx.Err() == nil; j++ {
				slug := ts.Channels[(reader+j)%len(ts.Channels)]
				docs, err := ts.Store.FindByChannel(ctx, docType, slug)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("reader %d failed: %w", reader, err)
					}
					return
				}
				if len(docs) != ts.Members[slug] {
					errorsChan <- fmt.Errorf("reader %d: %s returned %d documents, want %d", reader, slug, len(docs), ts.Members[slug])
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(writer)))
			for ctx.Err() == nil {
				id := ts.DocIDs[rng.Intn(len(ts.DocIDs))]
				err := ts.Store.Patch(id).
					Set(map[string]any{"lastSyncedAt": time.Now().UTC().Format(time.RFC3339Nano)}).
					Commit(ctx)
				if err != nil {
					if ctx.Err() == nil {
						errorsChan <- fmt.Errorf("writer %d failed on %s: %w", writer, id, err)
					}
					return
				}
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	close(errorsChan)
	for err := range errorsChan {
		return err
	}
	return nil
}

// generateDocuments creates synthetic block documents.
func generateDocuments(count int, channels []string) []store.Document {
	docs := make([]store.Document, count)
	classes := []string{"Text", "Image", "Link", "Media", "Attachment"}
	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Add(-30 * 24 * time.Hour)

	for i := 0; i < count; i++ {
		id := 100000 + i
		ch := []any{channelRef(channels[i%len(channels)])}
		if i%3 == 0 && len(channels) > 1 {
			other := channels[(i%len(channels)+1+rng.Intn(len(channels)-1))%len(channels)]
			ch = append(ch, channelRef(other))
		}
		created := baseTime.Add(time.Duration(i) * time.Minute).UTC().Format(time.RFC3339)

		docs[i] = store.Document{
			"_id":              fmt.Sprintf("arenaBlock-%d", id),
			"_type":            docType,
			"arenaId":          id,
			"title":            fmt.Sprintf("Block %d", id),
			"blockType":        classes[i%len(classes)],
			"channels":         ch,
			"arenaCreatedAt":   created,
			"arenaUpdatedAt":   created,
			"arenaFingerprint": fmt.Sprintf("%032x", rng.Uint64()),
			"isOrphan":         false,
		}
	}
	return docs
}

func channelRef(slug string) map[string]any {
	return map[string]any{"_key": slug, "slug": slug, "title": slug}
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats writes latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Queries: %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
