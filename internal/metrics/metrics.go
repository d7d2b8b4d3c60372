package metrics

import "sync"

var (
	mu       sync.Mutex
	counters = map[string]int64{}
)

func inc(key string) {
	mu.Lock()
	counters[key]++
	mu.Unlock()
}

func IncSucceeded(stage string) { inc("jobs_succeeded_" + lower(stage)) }
func IncFailed(stage string)    { inc("jobs_failed_" + lower(stage)) }
func IncBatches()               { inc("batches_enriched") }
func IncPeriods()               { inc("periods_built") }
func IncGoldWrites()            { inc("gold_writes") }

func Snapshot() map[string]int64 {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]int64, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}

// Reset clears all counters. Test helper.
func Reset() {
	mu.Lock()
	counters = map[string]int64{}
	mu.Unlock()
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
