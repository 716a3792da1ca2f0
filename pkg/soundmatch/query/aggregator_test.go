package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himanishpuri/soundmatch/pkg/models"
)

func aggregatorConfig(maxWait float64) models.QueryConfiguration {
	cfg := models.DefaultQueryConfiguration()
	cfg.Accuracy = 1.5
	cfg.MaxWait = maxWait
	return cfg
}

func withConfidence(e ResultEntry, confidence float64) ResultEntry {
	e.Confidence = confidence
	return e
}

func TestRealtimeAggregatorCollapsesAdjacentChunks(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	first := agg.Consume([]ResultEntry{entry("t", 0, 5)}, 5)
	assert.False(t, first.ContainsMatches())
	require.Len(t, agg.Pending(), 1)
	uid := agg.Pending()[0].uid

	second := agg.Consume([]ResultEntry{entry("t", 4.5, 4.5)}, 5)
	assert.False(t, second.ContainsMatches())

	pending := agg.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 0.0, pending[0].Entry().TrackMatchStartsAt)
	assert.InDelta(t, 9.0, pending[0].Entry().TrackMatchEndsAt(), 1e-9)
	assert.Zero(t, pending[0].Waiting())
	assert.NotEqual(t, uid, pending[0].uid)
}

func TestRealtimeAggregatorCollapsesWithinOneChunk(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	agg.Consume([]ResultEntry{entry("t", 4.5, 4.5), entry("t", 0, 5)}, 10)

	pending := agg.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 0.0, pending[0].Entry().TrackMatchStartsAt)
}

func TestRealtimeAggregatorCollapsesContainedWindow(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	agg.Consume([]ResultEntry{entry("t", 0, 10)}, 10)
	agg.Consume([]ResultEntry{entry("t", 2, 3)}, 10)

	pending := agg.Pending()
	require.Len(t, pending, 1)
	assert.InDelta(t, 10.0, pending[0].Entry().TrackMatchEndsAt(), 1e-9)
}

func TestRealtimeAggregatorKeepsSeparateMatches(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	agg.Consume([]ResultEntry{entry("t", 0, 5), entry("u", 0, 5)}, 5)
	agg.Consume([]ResultEntry{entry("t", 40, 5)}, 5)

	pending := agg.Pending()
	require.Len(t, pending, 3)
	for _, p := range pending {
		assert.Less(t, p.Waiting(), 10.0)
	}
}

func TestRealtimeAggregatorWaitsThenFlushes(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	agg.Consume([]ResultEntry{entry("t", 0, 5)}, 5)

	r := agg.Consume(nil, 5)
	assert.False(t, r.ContainsMatches())
	pending := agg.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 5.0, pending[0].Waiting())
	assert.InDelta(t, 10.0, pending[0].Entry().QueryLength, 1e-9)

	r = agg.Consume(nil, 5)
	require.Len(t, r.ResultEntries, 1)
	assert.Equal(t, trackRef("t"), r.ResultEntries[0].Track.Reference)
	assert.InDelta(t, 15.0, r.ResultEntries[0].QueryLength, 1e-9)
	assert.Empty(t, agg.Pending())
}

func TestRealtimeAggregatorZeroMaxWaitReportsImmediately(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(0), nil)

	r := agg.Consume([]ResultEntry{entry("t", 0, 5)}, 5)

	require.Len(t, r.ResultEntries, 1)
	assert.Empty(t, agg.Pending())
}

func TestRealtimeAggregatorFilterRejects(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(0), ConfidenceFilter{MinConfidence: 0.5})

	r := agg.Consume([]ResultEntry{
		withConfidence(entry("low", 0, 5), 0.2),
		withConfidence(entry("high", 0, 5), 0.9),
	}, 5)

	require.Len(t, r.ResultEntries, 1)
	require.Len(t, r.Rejected, 1)
	assert.Equal(t, trackRef("high"), r.ResultEntries[0].Track.Reference)
	assert.Equal(t, trackRef("low"), r.Rejected[0].Track.Reference)
}

func TestRealtimeAggregatorFlush(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), nil)

	agg.Consume([]ResultEntry{
		withConfidence(entry("a", 0, 5), 0.3),
		withConfidence(entry("b", 0, 5), 0.9),
	}, 5)

	r := agg.Flush()
	require.Len(t, r.ResultEntries, 2)
	assert.Equal(t, trackRef("b"), r.ResultEntries[0].Track.Reference)
	assert.Equal(t, trackRef("a"), r.ResultEntries[1].Track.Reference)
	assert.Empty(t, agg.Pending())
	assert.False(t, agg.Flush().ContainsMatches())
}

func TestCoverageFilter(t *testing.T) {
	f := CoverageFilter{MinCoverage: 3}
	assert.True(t, f.Pass(entry("t", 0, 3)))
	assert.False(t, f.Pass(entry("t", 0, 2.9)))
	assert.True(t, PassThroughFilter{}.Pass(ResultEntry{}))
}

func TestPendingCanWait(t *testing.T) {
	p := PendingResultEntry{waiting: 5}
	assert.True(t, p.CanWait(6))
	assert.False(t, p.CanWait(5))
}

func TestRealtimeAggregatorRejectsWeakMatchLateInStream(t *testing.T) {
	agg := NewRealtimeAggregator(aggregatorConfig(10), ConfidenceFilter{MinConfidence: 0.5})

	assert.False(t, agg.Consume([]ResultEntry{streamChunk(30, 38, 8)}, 10).ContainsMatches())
	assert.False(t, agg.Consume([]ResultEntry{streamChunk(40, 40, 10)}, 10).ContainsMatches())
	require.Len(t, agg.Pending(), 1)

	r := agg.Flush()
	assert.Empty(t, r.ResultEntries)
	require.Len(t, r.Rejected, 1)
	assert.InDelta(t, 0.2, r.Rejected[0].Confidence, 1e-9)
	assert.InDelta(t, 4.0, r.Rejected[0].QueryCoverageLength, 1e-9)
}
