package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		in      string
		version Version
		want    string
	}{
		{"Anna", MarkdownV1, "Anna"},
		{"a_b*c`d[e", MarkdownV1, `a\_b\*c\` + "`" + `d\[e`},
		{"1.5 (ok)!", MarkdownV2, `1\.5 \(ok\)\!`},
		{`back\slash`, MarkdownV2, `back\\slash`},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, tc.version)
		if err != nil {
			t.Fatalf("escape %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("escape %q v%d: got %q want %q", tc.in, tc.version, got, tc.want)
		}
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestDeref(t *testing.T) {
	s, n := "x", 7
	if Deref(&s, "-") != "x" || Deref(nil, "-") != "-" {
		t.Fatalf("Deref string")
	}
	if Deref(&n, 0) != 7 || Deref[int](nil, -1) != -1 {
		t.Fatalf("Deref int")
	}
	empty := ""
	if OrDash(nil) != "-" || OrDash(&empty) != "-" || OrDash(&s) != "x" {
		t.Fatalf("OrDash")
	}
}
