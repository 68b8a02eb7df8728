package bench

import "math"

// Rank is the label attached to a score bucket.
type Rank string

// Ranks in descending score order.
const (
	RankGPUDominance           Rank = "GPU Dominance"
	RankMassiveSpeedup         Rank = "Massive Speedup"
	RankSignificantParallelism Rank = "Significant Parallelism"
	RankNoticeableAcceleration Rank = "Noticeable Acceleration"
	RankMarginalGain           Rank = "Marginal Gain"
	RankCPUAdvantage           Rank = "CPU Advantage"
)

var rankThresholds = []struct {
	min  float64
	rank Rank
}{
	{3000, RankGPUDominance},
	{1000, RankMassiveSpeedup},
	{500, RankSignificantParallelism},
	{200, RankNoticeableAcceleration},
	{100, RankMarginalGain},
}

// RawScore returns cpu/gpu * 100 unrounded. A GPU duration of zero counts as
// one millisecond.
func RawScore(cpuMillis, gpuMillis int64) float64 {
	if cpuMillis < 0 {
		cpuMillis = 0
	}
	if gpuMillis <= 0 {
		gpuMillis = 1
	}
	return float64(cpuMillis) / float64(gpuMillis) * 100
}

// Score returns RawScore rounded to the nearest integer.
func Score(cpuMillis, gpuMillis int64) int64 {
	return int64(math.Round(RawScore(cpuMillis, gpuMillis)))
}

// RankFor returns the bucket of an unrounded score. Buckets are chosen before
// rounding, so a raw 99.5 is still CPU Advantage while reported as 100.
func RankFor(raw float64) Rank {
	for _, t := range rankThresholds {
		if raw >= t.min {
			return t.rank
		}
	}
	return RankCPUAdvantage
}

// Path identifies the CPU or the GPU implementation.
type Path string

const (
	PathCPU Path = "cpu"
	PathGPU Path = "gpu"
)

// Result is the score of one CPU and one GPU sample of the same image.
type Result struct {
	CPUMillis int64 `json:"cpuMillis"`
	GPUMillis int64 `json:"gpuMillis"`
	Score     int64 `json:"score"`
	Rank      Rank  `json:"rank"`
}

// Scoreboard holds the latest sample of each path for the current image.
// The zero value is empty.
type Scoreboard struct {
	cpu, gpu       int64
	hasCPU, hasGPU bool
}

// Record stores the duration of path, replacing any earlier sample.
func (sb *Scoreboard) Record(path Path, millis int64) {
	switch path {
	case PathCPU:
		sb.cpu, sb.hasCPU = millis, true
	case PathGPU:
		sb.gpu, sb.hasGPU = millis, true
	}
}

// Invalidate drops both samples.
func (sb *Scoreboard) Invalidate() {
	*sb = Scoreboard{}
}

// Result returns the score once both samples exist.
func (sb *Scoreboard) Result() (Result, bool) {
	if !sb.hasCPU || !sb.hasGPU {
		return Result{}, false
	}
	raw := RawScore(sb.cpu, sb.gpu)
	return Result{
		CPUMillis: sb.cpu,
		GPUMillis: sb.gpu,
		Score:     int64(math.Round(raw)),
		Rank:      RankFor(raw),
	}, true
}
