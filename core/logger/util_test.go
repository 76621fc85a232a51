package logger

import "testing"

func TestRatioSamplerPassesFirstNOfEveryD(t *testing.T) {
	s := newRatioSampler(2, 5)
	got := 0
	for i := 0; i < 50; i++ {
		if s.Allow() {
			got++
		}
	}
	if got != 20 {
		t.Fatalf("expected 20 of 50 allowed, got %d", got)
	}

	s.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatalf("disabled sampler must allow everything")
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50":  {1, 50},
		" 3/4 ": {3, 4},
		"10":    {1, 10},
		"0":     {0, 0},
		"":      {0, 0},
		"a/b":   {0, 0},
	}
	for spec, want := range cases {
		n, d := parseRatioSpec(spec)
		if n != want[0] || d != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", spec, n, d, want[0], want[1])
		}
	}
}

func TestSummarizeStrings(t *testing.T) {
	if s, cut := SummarizeStrings([]string{"a", "b", "c"}, 2); s != "a, b" || !cut {
		t.Fatalf("unexpected summary %q %v", s, cut)
	}
	if s, cut := SummarizeStrings([]string{"a"}, 3); s != "a" || cut {
		t.Fatalf("unexpected summary %q %v", s, cut)
	}
	if s, cut := SummarizeStrings(nil, 0); s != "" || cut {
		t.Fatalf("empty input must not be truncated, got %q %v", s, cut)
	}
}
