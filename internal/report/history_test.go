package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistoryDropsOldestAndReturnsNewestFirst(t *testing.T) {
	h := NewHistory(3)
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	for run := 1; run <= 5; run++ {
		code := 0
		if run%2 == 0 {
			code = 1
		}
		h.Record(NewResult("s", run, 100+run, code, start, start.Add(time.Second)))
	}

	assert.Equal(t, 3, h.Len())
	recent := h.Recent(0)
	assert.Equal(t, []int{5, 4, 3}, []int{recent[0].Run, recent[1].Run, recent[2].Run})
	assert.Len(t, h.Recent(2), 2)
	assert.Len(t, h.Recent(10), 3)
	assert.Equal(t, 1, h.Crashes())
}

func TestHistoryMinimumSize(t *testing.T) {
	h := NewHistory(0)
	h.Record(&Result{Run: 1})
	h.Record(&Result{Run: 2})
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 2, h.Recent(1)[0].Run)
}
