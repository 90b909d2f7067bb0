// Package progress computes velocity, completion estimates, and step
// metadata for exam generation jobs. Everything here is a pure
// function of its inputs so the worker can call it before every
// persisted progress write without side effects.
package progress

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"examgen/internal/model"
)

// ETA clamps, in seconds. Velocity-based estimates may be short;
// fallback estimates never promise less than 30s.
const (
	minVelocityETA = 10
	maxVelocityETA = 600
	minFallbackETA = 30
	maxFallbackETA = 600
	bufferFactor   = 1.2
)

// Static per-step base estimates in seconds, used when no usable
// velocity has been observed yet.
const (
	baseInitializing   = 5
	basePerVersion     = 45
	baseFormatting     = 10
	baseSelfAssessment = 30
	baseDefault        = 30
)

// Input is everything the estimator needs for one update.
type Input struct {
	Now                time.Time
	CreatedAt          time.Time
	PreviousPercentage int
	CurrentPercentage  int
	TotalVersions      int
	CurrentStep        string
}

// Snapshot is the computed estimate for one progress write.
type Snapshot struct {
	Percentage          int
	Velocity            float64
	ETASeconds          float64
	EstimatedCompletion time.Time
	StepDetails         model.StepDetails
}

// Estimate derives velocity from the observed percentage delta and
// projects a completion timestamp, falling back to static per-step
// estimates when no forward movement has been observed.
func Estimate(in Input) Snapshot {
	pct := clampInt(in.CurrentPercentage, 0, 100)

	elapsed := in.Now.Sub(in.CreatedAt).Seconds()
	var velocity float64
	if elapsed > 0 && pct > in.PreviousPercentage {
		velocity = float64(pct-in.PreviousPercentage) / elapsed
	}

	var eta float64
	if velocity > 0 {
		eta = clampFloat(float64(100-pct)/velocity, minVelocityETA, maxVelocityETA)
	} else {
		eta = clampFloat(baseEstimate(in.CurrentStep, in.TotalVersions)*bufferFactor, minFallbackETA, maxFallbackETA)
	}

	return Snapshot{
		Percentage:          pct,
		Velocity:            velocity,
		ETASeconds:          eta,
		EstimatedCompletion: in.Now.Add(time.Duration(eta * float64(time.Second))),
		StepDetails:         Details(in.CurrentStep, pct, in.TotalVersions),
	}
}

// Details computes the human-readable step metadata for a step tag.
func Details(step string, percentage, totalVersions int) model.StepDetails {
	details := model.StepDetails{
		StepName:     humanizeStep(step),
		StepCategory: categorize(step),
	}

	version := versionFromStep(step)
	if version > 0 {
		details.CurrentVersion = version
	}

	if totalVersions > 1 && version > 0 {
		perVersion := 100 / totalVersions
		details.PercentagePerVersion = perVersion

		// Progress within the slice owned by the version in flight,
		// expressed as 0..100 of that slice.
		sliceStart := (version - 1) * perVersion
		within := 0
		if perVersion > 0 {
			within = (percentage - sliceStart) * 100 / perVersion
		}
		details.CurrentVersionProgress = clampInt(within, 0, 100)
	}

	return details
}

func baseEstimate(step string, totalVersions int) float64 {
	if totalVersions < 1 {
		totalVersions = 1
	}

	switch {
	case step == "initializing":
		return baseInitializing
	case step == "generating_questions":
		// Aggregate step covering all versions still to come.
		return basePerVersion * float64(totalVersions)
	case strings.HasPrefix(step, "generating_version_"),
		strings.HasPrefix(step, "completed_version_"):
		return basePerVersion
	case strings.Contains(step, "self_assessment"):
		return baseSelfAssessment
	case strings.Contains(step, "format"):
		return baseFormatting
	default:
		return baseDefault
	}
}

func categorize(step string) string {
	switch {
	case strings.Contains(step, "failed"), strings.Contains(step, "error"):
		return "error"
	case step == "completed":
		return "completion"
	case strings.Contains(step, "generating"), strings.HasPrefix(step, "completed_version_"):
		return "generation"
	case strings.Contains(step, "format"):
		return "formatting"
	default:
		return "processing"
	}
}

// humanizeStep turns a step tag like "generating_version_2" into
// "Generating version 2".
func humanizeStep(step string) string {
	if step == "" {
		return ""
	}
	name := strings.ReplaceAll(step, "_", " ")
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// versionFromStep extracts the version index from tags like
// "generating_version_3", "completed_version_3", or
// "version_3_failed". Returns 0 when the tag carries no version.
func versionFromStep(step string) int {
	for _, part := range strings.Split(step, "_") {
		if n, err := strconv.Atoi(part); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
