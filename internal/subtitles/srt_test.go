package subtitles

import (
	"strings"
	"testing"
	"time"
)

const sampleSRT = "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\nHello there\r\n\r\n2\r\n00:00:03.000 --> 00:00:05,000 X1:10 Y1:20\r\nTwo\r\nlines\r\n\r\nnot a cue\r\n\r\n"

func TestParseString(t *testing.T) {
	cues, err := ParseString(sampleSRT)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Start != time.Second || cues[0].End != 2500*time.Millisecond || cues[0].Text != "Hello there" {
		t.Fatalf("unexpected first cue: %#v", cues[0])
	}
	if cues[1].Index != 2 || cues[1].Start != 3*time.Second || cues[1].Text != "Two\nlines" {
		t.Fatalf("unexpected second cue: %#v", cues[1])
	}
}

func TestParseStringRejectsBadTimestamp(t *testing.T) {
	if _, err := ParseString("1\n00:00:xx,000 --> 00:00:01,000\nhi\n"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 1500 * time.Millisecond, Text: "a"},
		{Start: time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, End: time.Hour + 2*time.Minute + 5*time.Second, Text: "b"},
	}
	out := Format(cues)
	if !strings.Contains(out, "2\n01:02:03,004 --> 01:02:05,000\nb\n") {
		t.Fatalf("unexpected format output:\n%s", out)
	}
	parsed, err := ParseString(out)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if len(parsed) != 2 || parsed[1].Start != cues[1].Start {
		t.Fatalf("round trip mismatch: %#v", parsed)
	}
}

func TestPlainText(t *testing.T) {
	cues := []Cue{{Text: "Two\nlines"}, {Text: "  "}, {Text: "three"}}
	if got := PlainText(cues); got != "Two lines\nthree\n" {
		t.Fatalf("PlainText = %q", got)
	}
	if PlainText(nil) != "" {
		t.Fatal("expected empty text for no cues")
	}
}

func TestClip(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2 * time.Second, Text: "a"},
		{Start: 2 * time.Second, End: 6 * time.Second, Text: "b"},
		{Start: 7 * time.Second, End: 9 * time.Second, Text: "c"},
	}
	clipped := Clip(cues, 4*time.Second, 8*time.Second)
	if len(clipped) != 2 {
		t.Fatalf("expected 2 clipped cues, got %#v", clipped)
	}
	if clipped[0].Start != 0 || clipped[0].End != 2*time.Second || clipped[0].Text != "b" {
		t.Fatalf("unexpected first clipped cue: %#v", clipped[0])
	}
	if clipped[1].Start != 3*time.Second || clipped[1].End != 4*time.Second {
		t.Fatalf("unexpected second clipped cue: %#v", clipped[1])
	}
}

func TestBoundsAndValidate(t *testing.T) {
	cues := []Cue{
		{Start: 2 * time.Second, End: 3 * time.Second},
		{Start: time.Second, End: 5 * time.Second},
	}
	first, last := Bounds(cues)
	if first != time.Second || last != 5*time.Second {
		t.Fatalf("Bounds = %v, %v", first, last)
	}
	if issues := Validate(cues); len(issues) != 1 {
		t.Fatalf("expected out-of-order issue, got %v", issues)
	}
	if issues := Validate(nil); len(issues) != 1 || issues[0] != "empty_subtitle_file" {
		t.Fatalf("unexpected issues for empty input: %v", issues)
	}
}
