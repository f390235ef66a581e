package jsoncfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlannerTemplatesNormalizeDefaults(t *testing.T) {
	p := &PlannerTemplates{}
	p.Normalize("")

	if p.Version != DefaultTemplateVersion {
		t.Fatalf("Version = %q, want %q", p.Version, DefaultTemplateVersion)
	}
	if p.ClipSeconds != DefaultClipSeconds {
		t.Fatalf("ClipSeconds = %d, want %d", p.ClipSeconds, DefaultClipSeconds)
	}
	if p.ScriptWordsMin != DefaultScriptWordsMin || p.ScriptWordsMax != DefaultScriptWordsMax {
		t.Fatalf("word range = %d-%d", p.ScriptWordsMin, p.ScriptWordsMax)
	}
	if p.Locale != DefaultExtrasLocale {
		t.Fatalf("Locale = %q, want %q", p.Locale, DefaultExtrasLocale)
	}
}

func TestPlannerTemplatesNormalizePreferredLocale(t *testing.T) {
	p := &PlannerTemplates{}
	p.Normalize("id")
	if p.Locale != "id" {
		t.Fatalf("Locale = %q, want id", p.Locale)
	}
}

func TestCreationInstructionRendersParameters(t *testing.T) {
	p := DefaultPlannerTemplates()
	p.ClipSeconds = 15
	p.ScriptWordsMin = 30
	p.ScriptWordsMax = 40

	got := p.CreationInstruction()
	for _, want := range []string{"15-second TikTok/X post", "(30-40 words)", "(125 chars max)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("instruction missing %q:\n%s", want, got)
		}
	}
}

func TestLoadPlannerTemplatesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.json")
	body := `{"platform":"Instagram Reels","clip_seconds":6,"script_words_min":15,"script_words_max":20}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tpl, err := LoadPlannerTemplates(path)
	if err != nil {
		t.Fatalf("LoadPlannerTemplates: %v", err)
	}
	if tpl.Platform != "Instagram Reels" || tpl.ClipSeconds != 6 {
		t.Fatalf("unexpected templates: %+v", tpl)
	}
	if !strings.Contains(tpl.CreationInstruction(), "6-second Instagram Reels post") {
		t.Fatalf("instruction not rendered: %s", tpl.CreationInstruction())
	}
}

func TestLoadPlannerTemplatesRejectsInvertedRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.json")
	if err := os.WriteFile(path, []byte(`{"script_words_min":50,"script_words_max":10}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPlannerTemplates(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadPlannerTemplatesEmptyPath(t *testing.T) {
	tpl, err := LoadPlannerTemplates("  ")
	if err != nil {
		t.Fatalf("LoadPlannerTemplates: %v", err)
	}
	if tpl.Extraction != DefaultExtraction {
		t.Fatal("expected default extraction template")
	}
}
