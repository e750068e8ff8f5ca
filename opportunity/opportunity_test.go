package opportunity

import (
	"math"
	"testing"

	"github.com/docutag/linkscout/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestPositionWeight(t *testing.T) {
	best := PositionWeight(2)
	mid := PositionWeight(8)
	poor := PositionWeight(20)

	assert.Greater(t, best, mid, "better positions should receive higher weights")
	assert.Greater(t, mid, poor, "mid positions should outrank poor positions")

	assert.InDelta(t, 0.5, PositionWeight(5), 1e-9, "midpoint sits at half weight")
	assert.InDelta(t, 0.7941, best, 1e-9)
	assert.InDelta(t, 0.0411, PositionWeight(12), 1e-9)
}

func TestPositionWeightFloorsDegeneratePositions(t *testing.T) {
	floor := PositionWeight(0.1)
	assert.Equal(t, floor, PositionWeight(0))
	assert.Equal(t, floor, PositionWeight(-7))
	assert.Equal(t, PositionWeight(12), PositionWeight(math.NaN()))
	assert.Equal(t, PositionWeight(12), PositionWeight(math.Inf(1)))
}

func TestPositionWeightMonotonic(t *testing.T) {
	prev := PositionWeight(1)
	for pos := 1.5; pos <= 100; pos += 0.5 {
		w := PositionWeight(pos)
		assert.LessOrEqual(t, w, prev, "weight increased at position %v", pos)
		assert.GreaterOrEqual(t, w, 0.0)
		prev = w
	}
}

func TestScoreWeights(t *testing.T) {
	strong := Score(Input{
		ScoreCurrent:    30,
		ScorePotential:  95,
		Priority:        models.PriorityCritical,
		Type:            models.TaskTypeOnPage,
		AveragePosition: ptr(4),
		ConversionRate:  ptr(0.08),
	})
	weaker := Score(Input{
		ScoreCurrent:    60,
		ScorePotential:  70,
		Priority:        models.PriorityLow,
		Type:            models.TaskTypeTech,
		AveragePosition: ptr(18),
		ConversionRate:  ptr(0.01),
	})

	assert.Greater(t, strong, weaker, "higher growth task should outscore lower growth task")
	assert.InDelta(t, 52.0, strong, 1e-9)
	assert.Equal(t, 0.0, weaker)
}

func TestScoreEffortPenalty(t *testing.T) {
	base := Input{
		ScoreCurrent:   20,
		ScorePotential: 80,
		Priority:       models.PriorityHigh,
		Type:           models.TaskTypeLocal,
	}

	low := base
	low.EffortOverride = ptr(1)
	high := base
	high.EffortOverride = ptr(8)

	assert.Greater(t, Score(low), Score(high), "higher effort should reduce the score")
	assert.InDelta(t, 33.8, Score(low), 1e-9)
	assert.InDelta(t, 21.8, Score(high), 1e-9)
}

func TestScoreTotality(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  float64
	}{
		{name: "only scores", input: Input{ScoreCurrent: 40, ScorePotential: 60}, want: 5.8},
		{name: "zero everything", input: Input{}, want: 0},
		{name: "unknown enums", input: Input{ScoreCurrent: 40, ScorePotential: 60, Priority: "URGENT", Type: "SOCIAL"}, want: 5.8},
		{name: "nan scores", input: Input{ScoreCurrent: math.NaN(), ScorePotential: 90, Priority: models.PriorityCritical}, want: 8.8},
		{
			name: "non-finite signals degrade to defaults",
			input: Input{
				ScoreCurrent:    40,
				ScorePotential:  60,
				AveragePosition: ptr(math.NaN()),
				ConversionRate:  ptr(math.Inf(1)),
				IntentScore:     ptr(math.NaN()),
				TrafficGap:      ptr(math.Inf(-1)),
				EffortOverride:  ptr(math.NaN()),
			},
			want: 0,
		},
		{
			name: "saturated",
			input: Input{
				ScorePotential:  100,
				Priority:        models.PriorityCritical,
				Type:            models.TaskTypeLocal,
				AveragePosition: ptr(1),
				ConversionRate:  ptr(0.5),
			},
			want: 81.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.input)
			require.False(t, math.IsNaN(got) || math.IsInf(got, 0), "score must be finite")
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreMonotonicFactors(t *testing.T) {
	base := Input{
		ScoreCurrent:    20,
		ScorePotential:  70,
		Priority:        models.PriorityHigh,
		Type:            models.TaskTypeOnPage,
		AveragePosition: ptr(6),
		ConversionRate:  ptr(0.05),
	}

	more := func(mutate func(*Input)) float64 {
		in := base
		mutate(&in)
		return Score(in)
	}

	baseline := Score(base)
	assert.Greater(t, more(func(in *Input) { in.ScorePotential = 90 }), baseline, "traffic gap")
	assert.Greater(t, more(func(in *Input) { in.Priority = models.PriorityCritical }), baseline, "intent")
	assert.Greater(t, more(func(in *Input) { in.AveragePosition = ptr(2) }), baseline, "position")
	assert.Greater(t, more(func(in *Input) { in.ConversionRate = ptr(0.15) }), baseline, "conversion")
	assert.Less(t, more(func(in *Input) { in.Type = models.TaskTypeTech }), baseline, "effort")
}

func TestIntentScoreOverridesPriority(t *testing.T) {
	in := Input{ScoreCurrent: 10, ScorePotential: 80, Priority: models.PriorityLow, IntentScore: ptr(3)}
	critical := Input{ScoreCurrent: 10, ScorePotential: 80, Priority: models.PriorityCritical}

	assert.Equal(t, Score(critical), Score(in), "intent score is clamped to 1 and wins over priority")
}

func TestExplicitTrafficGapWins(t *testing.T) {
	withGap := Input{ScoreCurrent: 90, ScorePotential: 10, TrafficGap: ptr(80)}
	derived := Input{ScoreCurrent: 10, ScorePotential: 90}

	assert.Equal(t, Score(derived), Score(withGap))
}
