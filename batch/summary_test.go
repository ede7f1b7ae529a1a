package batch

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcome(rel string, err error, start time.Time, d time.Duration) Outcome {
	o := Outcome{
		Task:     Task{Source: SourceFile{RelPath: rel}},
		Status:   StatusSuccess,
		Started:  start,
		Duration: d,
	}
	if err != nil {
		o.Status = StatusFailure
		o.Err = err
	}
	return o
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []Outcome{
		outcome("b/2.heic", errors.New("bad header"), t0.Add(time.Second), 2*time.Second),
		outcome("a/1.heic", nil, t0, 3*time.Second),
		outcome("a/0.heic", errors.New("permission denied"), t0.Add(500*time.Millisecond), time.Second),
	}

	sum := Summarize(outcomes)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.True(t, sum.HasFailures())
	assert.Equal(t, []Failure{
		{RelPath: "a/0.heic", Reason: "permission denied"},
		{RelPath: "b/2.heic", Reason: "bad header"},
	}, sum.Failures)
	// Wall-clock span, not the 6s sum of durations.
	assert.Equal(t, 3*time.Second, sum.Elapsed)
}

func TestSummarize_OrderIndependent(t *testing.T) {
	t0 := time.Now()
	a := []Outcome{
		outcome("x.heic", errors.New("x"), t0, time.Millisecond),
		outcome("y.heic", errors.New("y"), t0, time.Millisecond),
		outcome("z.heic", nil, t0, time.Millisecond),
	}
	b := []Outcome{a[2], a[1], a[0]}

	assert.Equal(t, Summarize(a), Summarize(b))
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil)
	assert.Equal(t, Summary{}, sum)
	assert.False(t, sum.HasFailures())
}

func TestReport_RoundTrip(t *testing.T) {
	rep := Report{
		RunID:   "3f1c2a9e-0000-4000-8000-000000000000",
		Started: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Input:   "/photos",
		Output:  "/photos/JPEG_Output",
		Format:  "jpeg",
		Quality: 100,
		Workers: 8,
		Summary: Summary{
			Total:     2,
			Succeeded: 1,
			Failed:    1,
			Failures:  []Failure{{RelPath: "album/IMG_2.heic", Reason: "decode failed: album/IMG_2.heic: bad header"}},
			Elapsed:   1500 * time.Millisecond,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, rep))
	assert.Contains(t, buf.String(), "run_id: 3f1c2a9e-0000-4000-8000-000000000000")
	assert.Contains(t, buf.String(), "path: album/IMG_2.heic")

	got, err := ReadReport(&buf)
	require.NoError(t, err)
	assert.Equal(t, rep.Summary, got.Summary)
	assert.True(t, rep.Started.Equal(got.Started))
	assert.Equal(t, rep.Input, got.Input)
}
