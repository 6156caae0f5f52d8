package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"  Night market: part 1/2  ": "Night market- part 1-2",
		`what? "yes" <no>|`:          "what yes no",
		"":                           "",
	}
	for input, want := range cases {
		if got := SanitizeFileName(input); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("line one\nline two", 0); got != "line one line two" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("မြန်မာစာ", 3); got != "မြ…" {
		t.Fatalf("got %q", got)
	}
}
