package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Cue is one timed subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration is the cue's on-screen time.
func (c Cue) Duration() time.Duration {
	if c.End <= c.Start {
		return 0
	}
	return c.End - c.Start
}

// Parse reads SRT content. Blocks without a valid timing line are skipped;
// the numeric index line is optional.
func Parse(r io.Reader) ([]Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return ParseString(string(data))
}

// ParseString parses SRT content held in memory.
func ParseString(content string) ([]Cue, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		cues  []Cue
		block []string
	)
	flush := func() error {
		defer func() { block = block[:0] }()
		if len(block) == 0 {
			return nil
		}
		cue, ok, err := parseBlock(block)
		if err != nil {
			return err
		}
		if ok {
			cue.Index = len(cues) + 1
			cues = append(cues, cue)
		}
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan srt: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseBlock(lines []string) (Cue, bool, error) {
	timingIdx := 0
	if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil && len(lines) > 1 {
		timingIdx = 1
	}
	startText, endText, found := strings.Cut(lines[timingIdx], "-->")
	if !found {
		return Cue{}, false, nil
	}
	start, err := ParseTimestamp(startText)
	if err != nil {
		return Cue{}, false, err
	}
	// Trailing position hints (X1:... Y1:...) follow the end timestamp.
	endFields := strings.Fields(endText)
	if len(endFields) == 0 {
		return Cue{}, false, fmt.Errorf("invalid timing line %q", lines[timingIdx])
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return Cue{}, false, err
	}
	text := make([]string, 0, len(lines)-timingIdx-1)
	for _, line := range lines[timingIdx+1:] {
		text = append(text, strings.TrimSpace(line))
	}
	return Cue{Start: start, End: end, Text: strings.Join(text, "\n")}, true, nil
}

// ParseTimestamp parses HH:MM:SS,mmm (a period is accepted in place of the comma).
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	clock, fraction, ok := strings.Cut(value, ",")
	if !ok {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(fraction)
	if errH != nil || errM != nil || errS != nil || errMS != nil || minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatTimestamp renders d as HH:MM:SS,mmm. Negative durations clamp to zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Millisecond)
	ms := d.Milliseconds()
	hours := ms / 3_600_000
	ms -= hours * 3_600_000
	minutes := ms / 60_000
	ms -= minutes * 60_000
	seconds := ms / 1000
	ms -= seconds * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// Encode writes cues as SRT, renumbering from 1.
func Encode(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for i, cue := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, FormatTimestamp(cue.Start), FormatTimestamp(cue.End), strings.TrimSpace(cue.Text)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Format renders cues as an SRT document.
func Format(cues []Cue) string {
	var b strings.Builder
	_ = Encode(&b, cues)
	return b.String()
}

// PlainText flattens cues to one line of text per cue.
func PlainText(cues []Cue) string {
	lines := make([]string, 0, len(cues))
	for _, cue := range cues {
		text := strings.Join(strings.Fields(cue.Text), " ")
		if text != "" {
			lines = append(lines, text)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Bounds returns the earliest start and latest end across cues.
func Bounds(cues []Cue) (time.Duration, time.Duration) {
	if len(cues) == 0 {
		return 0, 0
	}
	first, last := cues[0].Start, cues[0].End
	for _, cue := range cues[1:] {
		if cue.Start < first {
			first = cue.Start
		}
		if cue.End > last {
			last = cue.End
		}
	}
	return first, last
}

// Clip returns the cues overlapping [start, end), trimmed to the window and
// shifted so the window starts at zero.
func Clip(cues []Cue, start, end time.Duration) []Cue {
	var out []Cue
	for _, cue := range cues {
		if cue.End <= start || cue.Start >= end {
			continue
		}
		clipped := Cue{
			Index: len(out) + 1,
			Start: max(cue.Start, start) - start,
			End:   min(cue.End, end) - start,
			Text:  cue.Text,
		}
		if clipped.End <= 0 {
			continue
		}
		out = append(out, clipped)
	}
	return out
}

// Validate reports structural problems; an empty result means the cues are usable.
func Validate(cues []Cue) []string {
	if len(cues) == 0 {
		return []string{"empty_subtitle_file"}
	}
	var issues []string
	for i, cue := range cues {
		if cue.End <= cue.Start {
			issues = append(issues, fmt.Sprintf("cue %d: end before start", i+1))
		}
		if i > 0 && cue.Start < cues[i-1].Start {
			issues = append(issues, fmt.Sprintf("cue %d: out of order", i+1))
		}
	}
	return issues
}
