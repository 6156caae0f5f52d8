package scenes

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"shortvideo/internal/subtitles"
)

// File is one entry of a scene bundle.
type File struct {
	Name string
	Data []byte
}

type sceneManifest struct {
	Version         string       `json:"version"`
	TaskID          string       `json:"task_id"`
	SourceSubtitles string       `json:"source_subtitles"`
	SourceVideo     string       `json:"source_video"`
	Scenes          []sceneEntry `json:"scenes"`
}

type sceneEntry struct {
	SceneID         string            `json:"scene_id"`
	Start           float64           `json:"start"`
	End             float64           `json:"end"`
	Duration        float64           `json:"duration"`
	Assets          map[string]string `json:"assets"`
	SubtitlePreview string            `json:"subtitle_preview"`
}

type sceneDetail struct {
	SceneID   string            `json:"scene_id"`
	TaskID    string            `json:"task_id"`
	TimeRange [2]float64        `json:"time_range"`
	Language  string            `json:"language"`
	Summary   string            `json:"summary"`
	Assets    map[string]string `json:"assets"`
}

// BundleInput describes the scene package to assemble.
type BundleInput struct {
	TaskID      string
	Language    string
	SourceVideo string
	Cues        []subtitles.Cue
	Ranges      []Range
}

// BuildBundle lays out the scene package: a manifest, a README table, and a
// subtitle slice plus scene.json per scene. Media slicing is left to the
// editor; scene.json records the time range within the source video.
func BuildBundle(in BundleInput) ([]File, error) {
	manifest := sceneManifest{
		Version:         "1.8",
		TaskID:          in.TaskID,
		SourceSubtitles: in.Language,
		SourceVideo:     in.SourceVideo,
	}
	readme := []string{
		"# Scenes Package",
		"",
		"| Scene | Start | End | Duration | Subtitle Preview |",
		"| --- | --- | --- | --- | --- |",
	}

	var files []File
	for i, r := range in.Ranges {
		id := fmt.Sprintf("scene_%03d", i+1)
		clipped := subtitles.Clip(in.Cues, r.Start, r.End)
		preview := previewText(in.Cues, r)
		summary := preview
		if summary == "" {
			summary = id + " clip"
		}

		detail := sceneDetail{
			SceneID:   id,
			TaskID:    in.TaskID,
			TimeRange: [2]float64{seconds(r.Start.Seconds()), seconds(r.End.Seconds())},
			Language:  in.Language,
			Summary:   summary,
			Assets:    map[string]string{"subs": "subs.srt", "video": in.SourceVideo},
		}
		detailJSON, err := json.MarshalIndent(detail, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", id, err)
		}
		files = append(files,
			File{Name: "scenes/" + id + "/subs.srt", Data: []byte(subtitles.Format(clipped))},
			File{Name: "scenes/" + id + "/scene.json", Data: detailJSON},
		)

		manifest.Scenes = append(manifest.Scenes, sceneEntry{
			SceneID:  id,
			Start:    seconds(r.Start.Seconds()),
			End:      seconds(r.End.Seconds()),
			Duration: seconds(r.Duration().Seconds()),
			Assets: map[string]string{
				"subs":       "scenes/" + id + "/subs.srt",
				"scene_json": "scenes/" + id + "/scene.json",
			},
			SubtitlePreview: preview,
		})
		readme = append(readme, fmt.Sprintf("| %s | %.2fs | %.2fs | %.2fs | %s |",
			id, r.Start.Seconds(), r.End.Seconds(), r.Duration().Seconds(), preview))
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode scenes manifest: %w", err)
	}
	files = append(files,
		File{Name: "manifest.json", Data: manifestJSON},
		File{Name: "README.md", Data: []byte(strings.Join(readme, "\n") + "\n")},
	)
	return files, nil
}

func previewText(cues []subtitles.Cue, r Range) string {
	for _, cue := range cues {
		if cue.End > r.Start && cue.Start < r.End {
			first, _, _ := strings.Cut(cue.Text, "\n")
			return strings.TrimSpace(first)
		}
	}
	return ""
}

func seconds(v float64) float64 {
	return math.Round(v*1000) / 1000
}
