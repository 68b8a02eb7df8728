package bench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		cpu, gpu int64
		score    int64
		rank     Rank
	}{
		{"ten times faster", 100, 10, 1000, RankMassiveSpeedup},
		{"zero gpu counts as one", 100, 0, 10000, RankGPUDominance},
		{"tie is marginal gain", 50, 50, 100, RankMarginalGain},
		{"cpu faster", 10, 50, 20, RankCPUAdvantage},
		{"rounds to nearest", 2, 3, 67, RankCPUAdvantage},
		{"significant", 60, 10, 600, RankSignificantParallelism},
		{"noticeable", 25, 10, 250, RankNoticeableAcceleration},
		{"rounds up into marginal but ranks below", 199, 200, 100, RankCPUAdvantage},
		{"rounds up to dominance but ranks below", 5999, 200, 3000, RankMassiveSpeedup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, Score(tt.cpu, tt.gpu))
			assert.Equal(t, tt.rank, RankFor(RawScore(tt.cpu, tt.gpu)))
		})
	}
}

func TestRankForBoundaries(t *testing.T) {
	assert.Equal(t, RankGPUDominance, RankFor(3000))
	assert.Equal(t, RankMassiveSpeedup, RankFor(2999))
	assert.Equal(t, RankMassiveSpeedup, RankFor(1000))
	assert.Equal(t, RankSignificantParallelism, RankFor(999))
	assert.Equal(t, RankSignificantParallelism, RankFor(500))
	assert.Equal(t, RankNoticeableAcceleration, RankFor(499))
	assert.Equal(t, RankNoticeableAcceleration, RankFor(200))
	assert.Equal(t, RankMarginalGain, RankFor(199))
	assert.Equal(t, RankMarginalGain, RankFor(100))
	assert.Equal(t, RankCPUAdvantage, RankFor(99))
	assert.Equal(t, RankCPUAdvantage, RankFor(0))
	assert.Equal(t, RankCPUAdvantage, RankFor(99.5))
	assert.Equal(t, RankMassiveSpeedup, RankFor(2999.5))
}

func TestScoreboard(t *testing.T) {
	var sb Scoreboard

	_, ok := sb.Result()
	assert.False(t, ok)

	sb.Record(PathCPU, 100)
	_, ok = sb.Result()
	assert.False(t, ok, "one sample is not a score")

	sb.Record(PathGPU, 10)
	res, ok := sb.Result()
	assert.True(t, ok)
	assert.Equal(t, Result{CPUMillis: 100, GPUMillis: 10, Score: 1000, Rank: RankMassiveSpeedup}, res)

	sb.Record(PathGPU, 0)
	res, _ = sb.Result()
	assert.Equal(t, int64(10000), res.Score)

	sb.Record(PathCPU, 199)
	sb.Record(PathGPU, 200)
	res, _ = sb.Result()
	assert.Equal(t, int64(100), res.Score)
	assert.Equal(t, RankCPUAdvantage, res.Rank, "rank follows the unrounded score")

	sb.Invalidate()
	_, ok = sb.Result()
	assert.False(t, ok)
}
