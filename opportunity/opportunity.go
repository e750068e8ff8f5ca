// Package opportunity ranks heterogeneous tasks on a single 0-100 scale.
//
// The score is a weighted sum of normalized traffic gap, intent, SERP position and
// conversion signals, minus a normalized effort penalty.
package opportunity

import (
	"math"

	"github.com/docutag/linkscout/models"
)

// Weights are the per-factor multipliers of the combined score
type Weights struct {
	TrafficGap float64
	Intent     float64
	Position   float64
	Conversion float64
	Effort     float64 // Subtracted
}

// Curve parameterizes the logistic position weight
type Curve struct {
	Midpoint  float64
	Steepness float64
}

// Model holds the tunable parameters of the scorer
type Model struct {
	Weights           Weights
	Curve             Curve
	DefaultPosition   float64 // Used when no position is known
	MaxTrafficGap     float64
	MaxConversionRate float64
	PriorityIntent    map[models.Priority]float64
	TypeEffort        map[models.TaskType]float64
}

// Default is the calibrated model used by Score and PositionWeight
var Default = Model{
	Weights: Weights{
		TrafficGap: 0.35,
		Intent:     0.20,
		Position:   0.20,
		Conversion: 0.15,
		Effort:     0.15,
	},
	Curve:             Curve{Midpoint: 5, Steepness: 0.45},
	DefaultPosition:   12,
	MaxTrafficGap:     100,
	MaxConversionRate: 0.20,
	PriorityIntent: map[models.Priority]float64{
		models.PriorityLow:      0.25,
		models.PriorityMedium:   0.5,
		models.PriorityHigh:     0.75,
		models.PriorityCritical: 1,
	},
	TypeEffort: map[models.TaskType]float64{
		models.TaskTypeOnPage:  3,
		models.TaskTypeContent: 4,
		models.TaskTypeTech:    5,
		models.TaskTypeLink:    4,
		models.TaskTypeLocal:   2,
	},
}

// minPosition keeps the logistic curve away from zero and negative ranks
const minPosition = 0.1

// Input carries the signals of one work item. Nil pointers mean "unknown".
type Input struct {
	ScoreCurrent    float64         `json:"score_current"`
	ScorePotential  float64         `json:"score_potential"`
	Priority        models.Priority `json:"priority,omitempty"`
	Type            models.TaskType `json:"type,omitempty"`
	AveragePosition *float64        `json:"average_position,omitempty"`
	ConversionRate  *float64        `json:"conversion_rate,omitempty"`
	IntentScore     *float64        `json:"intent_score,omitempty"`
	TrafficGap      *float64        `json:"traffic_gap,omitempty"`
	EffortOverride  *float64        `json:"effort_override,omitempty"`
}

// InputFromTask builds scorer input from a task and its live signals
func InputFromTask(task models.Task) Input {
	return Input{
		ScoreCurrent:    float64(task.ScoreCurrent),
		ScorePotential:  float64(task.ScorePotential),
		Priority:        task.Priority,
		Type:            task.Type,
		AveragePosition: task.AveragePosition,
		ConversionRate:  task.ConversionRate,
		IntentScore:     task.IntentScore,
		TrafficGap:      task.TrafficGap,
		EffortOverride:  task.EffortEstimate,
	}
}

// Score computes the opportunity score of in with the Default model
func Score(in Input) float64 {
	return Default.Score(in)
}

// PositionWeight maps a SERP position to (0,1] with the Default model
func PositionWeight(position float64) float64 {
	return Default.PositionWeight(position)
}

// Score returns a value in [0,100] rounded to one decimal. It never fails: missing or
// non-finite signals fall back to neutral defaults.
func (m Model) Score(in Input) float64 {
	gap := math.Max(0, in.ScorePotential-in.ScoreCurrent)
	if in.TrafficGap != nil {
		gap = *in.TrafficGap
	}

	position := m.DefaultPosition
	if in.AveragePosition != nil {
		position = *in.AveragePosition
	}

	raw := m.Weights.TrafficGap*m.trafficGapFactor(gap) +
		m.Weights.Intent*m.intentFactor(in.IntentScore, in.Priority) +
		m.Weights.Position*m.PositionWeight(position) +
		m.Weights.Conversion*m.conversionFactor(in.ConversionRate) -
		m.Weights.Effort*m.effortFactor(in.EffortOverride, in.Type)

	return round(clamp(raw, 0, 1)*100, 1)
}

// PositionWeight is a logistic curve over SERP position: better (lower) positions get
// higher weights. Non-finite positions use the model's default position.
func (m Model) PositionWeight(position float64) float64 {
	if !isFinite(position) {
		position = m.DefaultPosition
	}
	position = math.Max(minPosition, position)
	weight := 1 / (1 + math.Exp(m.Curve.Steepness*(position-m.Curve.Midpoint)))
	return clamp(round(weight, 4), 0, 1)
}

func (m Model) trafficGapFactor(gap float64) float64 {
	if !isFinite(gap) {
		return 0
	}
	return clamp(gap/m.MaxTrafficGap, 0, 1)
}

func (m Model) intentFactor(intentScore *float64, priority models.Priority) float64 {
	if intentScore != nil && isFinite(*intentScore) {
		return clamp(*intentScore, 0, 1)
	}
	if weight, ok := m.PriorityIntent[priority]; ok {
		return weight
	}
	return m.PriorityIntent[models.PriorityMedium]
}

func (m Model) conversionFactor(rate *float64) float64 {
	if rate == nil || !isFinite(*rate) || *rate <= 0 {
		return 0
	}
	return clamp(*rate/m.MaxConversionRate, 0, 1)
}

func (m Model) effortFactor(override *float64, taskType models.TaskType) float64 {
	effort, ok := m.TypeEffort[taskType]
	if !ok {
		effort = m.TypeEffort[models.TaskTypeContent]
	}
	if override != nil && isFinite(*override) && *override > 0 {
		effort = *override
	}
	return clamp(effort/m.maxEffort(), 0, 1)
}

func (m Model) maxEffort() float64 {
	highest := 0.0
	for _, effort := range m.TypeEffort {
		highest = math.Max(highest, effort)
	}
	if highest == 0 {
		return 1
	}
	return highest
}

func clamp(value, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, value))
}

func round(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
