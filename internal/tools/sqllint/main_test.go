package main

import (
	"strings"
	"testing"
)

func TestLintSourceFindsMissingAndDuplicateMarkers(t *testing.T) {
	src := "package q\n\n" +
		"const A = `--sql 11111111-2222-3333-4444-555555555555\nSELECT 1`\n" +
		"const B = `SELECT 2`\n" +
		"const C = `--sql 11111111-2222-3333-4444-555555555555\nUPDATE t SET x = 1`\n" +
		"const D = \"not sql at all\"\n"

	l := newLinter()
	if err := l.lintSource("q.go", []byte(src)); err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(l.findings) != 2 {
		t.Fatalf("expected 2 findings, got %v", l.findings)
	}
	if l.findings[0].name != "B" || !strings.Contains(l.findings[0].message, "missing") {
		t.Fatalf("unexpected first finding %v", l.findings[0])
	}
	if l.findings[1].name != "C" || !strings.Contains(l.findings[1].message, "already used") {
		t.Fatalf("unexpected second finding %v", l.findings[1])
	}
}

func TestLintSourceAcceptsSqlinlineQueries(t *testing.T) {
	l := newLinter()
	if err := l.walk("../../sqlinline"); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(l.findings) != 0 {
		t.Fatalf("unexpected findings %v", l.findings)
	}
	if len(l.seen) == 0 {
		t.Fatalf("expected at least one marked query")
	}
}
