package scenes

import (
	"errors"
	"time"

	"shortvideo/internal/subtitles"
)

// Options tunes how cues are grouped into scenes.
type Options struct {
	MinScene      time.Duration
	MaxScene      time.Duration
	SilenceGap    time.Duration
	CaptionsGroup int
}

// DefaultOptions returns the standard scene planning thresholds.
func DefaultOptions() Options {
	return Options{
		MinScene:      3 * time.Second,
		MaxScene:      18 * time.Second,
		SilenceGap:    600 * time.Millisecond,
		CaptionsGroup: 4,
	}
}

// Range is one planned scene.
type Range struct {
	Start time.Duration
	End   time.Duration
}

// Duration is the length of the scene.
func (r Range) Duration() time.Duration { return r.End - r.Start }

// ErrNoCues is returned when there is nothing to plan.
var ErrNoCues = errors.New("no subtitle cues to derive scenes from")

// Plan cuts a scene after a cue when the gap to the next cue reaches the
// silence threshold, when CaptionsGroup cues have accumulated, or when the
// scene reaches MaxScene, provided the scene is at least MinScene long. A
// trailing remainder shorter than MinScene is folded into the last scene.
func Plan(cues []subtitles.Cue, opts Options) ([]Range, error) {
	if len(cues) == 0 {
		return nil, ErrNoCues
	}
	opts = opts.withDefaults()

	var ranges []Range
	sceneStart := cues[0].Start
	lastEnd := cues[len(cues)-1].End
	sinceCut := 0

	for i, cue := range cues {
		sinceCut++
		duration := cue.End - sceneStart

		cut := false
		if i+1 < len(cues) && cues[i+1].Start-cue.End >= opts.SilenceGap {
			cut = true
		}
		if sinceCut >= opts.CaptionsGroup || duration >= opts.MaxScene {
			cut = true
		}
		if cut && duration >= opts.MinScene {
			ranges = append(ranges, Range{Start: sceneStart, End: cue.End})
			sceneStart = cue.End
			sinceCut = 0
		}
	}

	if len(ranges) == 0 {
		return []Range{{Start: cues[0].Start, End: lastEnd}}, nil
	}
	if tail := ranges[len(ranges)-1]; tail.End < lastEnd {
		if lastEnd-sceneStart < opts.MinScene {
			ranges[len(ranges)-1].End = lastEnd
		} else {
			ranges = append(ranges, Range{Start: sceneStart, End: lastEnd})
		}
	}
	return ranges, nil
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinScene <= 0 {
		o.MinScene = def.MinScene
	}
	if o.MaxScene <= 0 {
		o.MaxScene = def.MaxScene
	}
	if o.SilenceGap <= 0 {
		o.SilenceGap = def.SilenceGap
	}
	if o.CaptionsGroup <= 0 {
		o.CaptionsGroup = def.CaptionsGroup
	}
	return o
}
