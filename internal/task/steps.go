package task

import (
	"strings"

	"shortvideo/internal/artifact"
)

// Step names one pipeline stage.
type Step string

const (
	StepParse     Step = "parse"
	StepSubtitles Step = "subtitles"
	StepDub       Step = "dub"
	StepScenes    Step = "scenes"
	StepPack      Step = "pack"
)

var allSteps = []Step{StepParse, StepSubtitles, StepDub, StepScenes, StepPack}

var stepDependencies = map[Step][]Step{
	StepParse:     nil,
	StepSubtitles: {StepParse},
	StepDub:       {StepSubtitles},
	StepScenes:    {StepSubtitles},
	StepPack:      {StepParse, StepSubtitles, StepDub},
}

var stepOutputs = map[Step][]artifact.Kind{
	StepParse:     {artifact.KindRaw},
	StepSubtitles: {artifact.KindSubsOrigin, artifact.KindSubsMM, artifact.KindSubsMMText},
	StepDub:       {artifact.KindAudioMM},
	StepScenes:    {artifact.KindScenes},
	StepPack:      {artifact.KindPack},
}

// AllSteps returns the steps in pipeline order.
func AllSteps() []Step {
	out := make([]Step, len(allSteps))
	copy(out, allSteps)
	return out
}

// ParseStep validates a step name.
func ParseStep(value string) (Step, bool) {
	step := Step(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := stepDependencies[step]; ok {
		return step, true
	}
	return "", false
}

func (s Step) String() string { return string(s) }

// Dependencies are the steps that must be ready before s can run.
func (s Step) Dependencies() []Step {
	return append([]Step(nil), stepDependencies[s]...)
}

// Outputs are the artifact kinds s produces.
func (s Step) Outputs() []artifact.Kind {
	return append([]artifact.Kind(nil), stepOutputs[s]...)
}

// Producer returns the step that outputs kind.
func Producer(kind artifact.Kind) (Step, bool) {
	for _, step := range allSteps {
		for _, out := range stepOutputs[step] {
			if out == kind {
				return step, true
			}
		}
	}
	return "", false
}

// Required reports whether a failure of s fails the whole task.
func (s Step) Required() bool {
	return s != StepScenes
}

// Downstream returns every step that transitively depends on s, in pipeline order.
func (s Step) Downstream() []Step {
	affected := map[Step]bool{s: true}
	var out []Step
	for _, candidate := range allSteps {
		if candidate == s {
			continue
		}
		for _, dep := range stepDependencies[candidate] {
			if affected[dep] {
				affected[candidate] = true
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}
