package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var epoch = time.Unix(1_700_000_000, 0)

// TestBucketWindow tests that a bucket admits exactly max frames per window
func TestBucketWindow(t *testing.T) {
	t.Parallel()

	const n = 10
	window := time.Second
	b := NewBucket(n, window)

	for i := 0; i < n; i++ {
		require.True(t, b.TakeAt(1, epoch), "frame %d should be admitted", i+1)
	}
	assert.False(t, b.TakeAt(1, epoch), "frame %d should be refused", n+1)

	later := epoch.Add(window)
	for i := 0; i < n; i++ {
		require.True(t, b.TakeAt(1, later), "frame %d after refill should be admitted", i+1)
	}
	assert.False(t, b.TakeAt(1, later))
}

// TestBucketWindowCap tests that takes spread over one window never exceed max
func TestBucketWindowCap(t *testing.T) {
	t.Parallel()

	b := NewBucket(2, time.Second)
	offsets := []time.Duration{0, 0, 500 * time.Millisecond, 999 * time.Millisecond}
	admitted := 0
	for _, off := range offsets {
		if b.TakeAt(1, epoch.Add(off)) {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)

	assert.True(t, b.TakeAt(1, epoch.Add(time.Second)))
}

// TestBucketRefillAcrossWindows tests that a new window only gets the tokens
// dripped back since they were spent
func TestBucketRefillAcrossWindows(t *testing.T) {
	t.Parallel()

	b := NewBucket(10, time.Second)
	require.True(t, b.TakeAt(1, epoch))
	require.True(t, b.TakeAt(9, epoch.Add(900*time.Millisecond)))

	// the window opened at epoch has expired but only 2.5 tokens are back
	next := epoch.Add(1050 * time.Millisecond)
	assert.True(t, b.TakeAt(2, next))
	assert.False(t, b.TakeAt(1, next))
}

// TestBucketShortWindow tests that a window shorter than max nanoseconds
// still limits
func TestBucketShortWindow(t *testing.T) {
	t.Parallel()

	b := NewBucket(10, 5*time.Nanosecond)
	assert.NotEqual(t, rate.Inf, b.limiter.Limit())
	require.True(t, b.TakeAt(10, epoch))
	assert.False(t, b.TakeAt(1, epoch))
}

// TestBucketCostAboveCapacity tests that a cost above capacity is never admitted
func TestBucketCostAboveCapacity(t *testing.T) {
	t.Parallel()

	b := NewBucket(5, time.Second)
	assert.False(t, b.TakeAt(6, epoch))
	assert.True(t, b.TakeAt(5, epoch))
}

// TestBucketInvalid tests that an unusable configuration refuses everything
func TestBucketInvalid(t *testing.T) {
	t.Parallel()

	assert.False(t, NewBucket(0, time.Second).TakeAt(1, epoch))
	assert.False(t, NewBucket(5, 0).TakeAt(1, epoch))
}

// TestConfigCost tests the topic cost table
func TestConfigCost(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Costs = map[string]int{"p": 5, "l": 2, "e": 3, "module": 4, "i": 0}

	tests := []struct {
		topic string
		want  int
	}{
		{"p", 5},
		{"l", 2},
		{"e", 3},
		{"module", 4},
		{"i", 0},
		{"unknown", 1},
		{"", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Cost(tt.topic), "topic %q", tt.topic)
	}
}

// TestGateVerdicts tests primary and notice buckets working together
func TestGateVerdicts(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Enabled:      true,
		Max:          2,
		Window:       time.Second,
		NoticeMax:    1,
		NoticeWindow: time.Minute,
		Costs:        map[string]int{"module": 2},
		Quiet:        []string{"p", "heartbeat"},
	}
	g := New(cfg)

	assert.Equal(t, Admitted, g.AdmitAt("i", epoch))
	assert.Equal(t, Admitted, g.AdmitAt("i", epoch))
	assert.Equal(t, Dropped, g.AdmitAt("p", epoch))
	assert.Equal(t, Dropped, g.AdmitAt("heartbeat", epoch))
	assert.Equal(t, Notify, g.AdmitAt("i", epoch))
	assert.Equal(t, Suppressed, g.AdmitAt("i", epoch))

	// primary refilled, notice bucket still empty
	later := epoch.Add(time.Second)
	assert.Equal(t, Admitted, g.AdmitAt("module", later))
	assert.Equal(t, Suppressed, g.AdmitAt("module", later))
}

// TestGateDisabled tests that a disabled gate admits everything
func TestGateDisabled(t *testing.T) {
	t.Parallel()

	g := New(Disabled())
	for i := 0; i < 1000; i++ {
		require.Equal(t, Admitted, g.AdmitAt("i", epoch))
	}
}

// TestGateDefaultNoticeBucket tests that missing notice settings fall back to defaults
func TestGateDefaultNoticeBucket(t *testing.T) {
	t.Parallel()

	g := New(Config{Enabled: true, Max: 1, Window: time.Second})
	require.Equal(t, Admitted, g.AdmitAt("i", epoch))
	for i := 0; i < DefaultNoticeMax; i++ {
		require.Equal(t, Notify, g.AdmitAt("i", epoch))
	}
	assert.Equal(t, Suppressed, g.AdmitAt("i", epoch))
}

// TestVerdictString tests verdict names used in logs
func TestVerdictString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "admitted", Admitted.String())
	assert.Equal(t, "dropped", Dropped.String())
	assert.Equal(t, "notify", Notify.String())
	assert.Equal(t, "suppressed", Suppressed.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
