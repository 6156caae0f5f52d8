package scenes

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"shortvideo/internal/subtitles"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func cue(startMS, endMS int, text string) subtitles.Cue {
	return subtitles.Cue{Start: ms(startMS), End: ms(endMS), Text: text}
}

func TestPlanCutsOnSilence(t *testing.T) {
	cues := []subtitles.Cue{
		cue(0, 2000, "a"),
		cue(2100, 4000, "b"),
		cue(5000, 8000, "c"),
		cue(8100, 9000, "d"),
		cue(9100, 10000, "e"),
	}
	got, err := Plan(cues, DefaultOptions())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []Range{{Start: 0, End: ms(4000)}, {Start: ms(4000), End: ms(10000)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Plan = %v, want %v", got, want)
	}
}

func TestPlanFoldsShortTail(t *testing.T) {
	cues := []subtitles.Cue{cue(0, 4000, "a"), cue(5000, 6000, "b")}
	got, err := Plan(cues, DefaultOptions())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []Range{{Start: 0, End: ms(6000)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Plan = %v, want %v", got, want)
	}
}

func TestPlanMaxSceneAndSingleCue(t *testing.T) {
	got, err := Plan([]subtitles.Cue{cue(0, 10000, "a"), cue(10000, 20000, "b"), cue(20000, 24000, "c")}, Options{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []Range{{Start: 0, End: ms(20000)}, {Start: ms(20000), End: ms(24000)}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Plan = %v, want %v", got, want)
	}

	got, err = Plan([]subtitles.Cue{cue(500, 1500, "only")}, DefaultOptions())
	if err != nil || len(got) != 1 || got[0].Start != ms(500) || got[0].End != ms(1500) {
		t.Fatalf("single cue plan = %v err=%v", got, err)
	}

	if _, err := Plan(nil, DefaultOptions()); !errors.Is(err, ErrNoCues) {
		t.Fatalf("expected ErrNoCues, got %v", err)
	}
}

func TestBuildBundle(t *testing.T) {
	cues := []subtitles.Cue{cue(0, 2000, "first line\nsecond"), cue(5000, 8000, "later")}
	files, err := BuildBundle(BundleInput{
		TaskID:      "abc123",
		Language:    "my",
		SourceVideo: "raw/raw.mp4",
		Cues:        cues,
		Ranges:      []Range{{Start: 0, End: ms(4000)}, {Start: ms(4000), End: ms(8000)}},
	})
	if err != nil {
		t.Fatalf("BuildBundle failed: %v", err)
	}

	byName := map[string][]byte{}
	for _, f := range files {
		byName[f.Name] = f.Data
	}
	for _, name := range []string{
		"manifest.json", "README.md",
		"scenes/scene_001/subs.srt", "scenes/scene_001/scene.json",
		"scenes/scene_002/subs.srt", "scenes/scene_002/scene.json",
	} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("missing bundle entry %s", name)
		}
	}

	var manifest struct {
		Version string `json:"version"`
		Scenes  []struct {
			SceneID  string  `json:"scene_id"`
			Duration float64 `json:"duration"`
			Preview  string  `json:"subtitle_preview"`
		} `json:"scenes"`
	}
	if err := json.Unmarshal(byName["manifest.json"], &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Version != "1.8" || len(manifest.Scenes) != 2 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	if manifest.Scenes[0].Preview != "first line" || manifest.Scenes[1].Duration != 4 {
		t.Fatalf("unexpected scene entries: %+v", manifest.Scenes)
	}

	second := string(byName["scenes/scene_002/subs.srt"])
	if !strings.Contains(second, "00:00:01,000 --> 00:00:04,000\nlater") {
		t.Fatalf("scene subtitles not shifted:\n%s", second)
	}
}
