package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reelgen/internal/domain"
	"reelgen/internal/domain/jsoncfg"
)

type call struct {
	system string
	user   string
}

type scriptedModel struct {
	replies []string
	errs    []error
	calls   []call
}

func (m *scriptedModel) Complete(_ context.Context, system, user string) (string, error) {
	i := len(m.calls)
	m.calls = append(m.calls, call{system: system, user: user})
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i >= len(m.replies) {
		return "", errors.New("unexpected call")
	}
	return m.replies[i], nil
}

type fixedTrends string

func (f fixedTrends) Context(context.Context) (string, error) { return string(f), nil }

type failingTrends struct{}

func (failingTrends) Context(context.Context) (string, error) { return "", errors.New("offline") }

const headphonesProfile = `{"product_name":"AuraSound Pro","key_features":"40 hour battery, active noise cancellation and a featherweight fit.","target_audience":"Commuters and remote workers who want quiet focus.","call_to_action":"Shop now!"}`

func headphonesScript() string {
	return strings.TrimSpace(strings.Repeat("Silence the city and hear every note with forty hours of battery. ", 12))
}

func headphonesPlan() string {
	return "```json\n" + `{"script":"` + headphonesScript() + `","audio_prompt":"Warm, confident narrator with an upbeat pace.","video_prompt":"Slow orbit around matte black headphones on a desk at golden hour.","image_prompt":"Studio product shot of matte black headphones on white marble.","caption":"Forty hours of pure focus. #headphones #ANC"}` + "\n```"
}

func newPlanner(t *testing.T, model TextModel, src TrendSource) *Planner {
	t.Helper()
	p, err := New(Options{Model: model, Trends: src})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return p
}

func TestPlanHeadphonesScenario(t *testing.T) {
	model := &scriptedModel{replies: []string{headphonesProfile, headphonesPlan()}}
	p := newPlanner(t, model, fixedTrends("Experiential gifts are up."))

	plan, err := p.Plan(context.Background(), Request{Text: "New wireless headphones with 40hr battery and noise cancellation"})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if missing := plan.MissingFields(); len(missing) != 0 {
		t.Fatalf("plan missing fields %v", missing)
	}
	words := len(strings.Fields(plan.Script))
	tpl := p.Templates()
	if words < tpl.ScriptWordsMin || words > tpl.ScriptWordsMax {
		t.Fatalf("script has %d words, want %d-%d", words, tpl.ScriptWordsMin, tpl.ScriptWordsMax)
	}
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.calls))
	}
	if model.calls[0].system != jsoncfg.DefaultExtraction {
		t.Fatal("first call should use the extraction instruction")
	}
	if model.calls[0].user != "New wireless headphones with 40hr battery and noise cancellation" {
		t.Fatalf("first call user = %q", model.calls[0].user)
	}
	second := model.calls[1]
	if !strings.Contains(second.user, `"product_name":"AuraSound Pro"`) || !strings.Contains(second.user, "Experiential gifts are up.") {
		t.Fatalf("second call user missing profile or trends: %q", second.user)
	}
	if !strings.Contains(second.system, "10-second TikTok/X post") || !strings.Contains(second.system, "120-150 words") {
		t.Fatalf("creation instruction not rendered: %q", second.system)
	}
}

func TestPlanFailsWhenProfileFieldMissing(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"product_name":"AuraSound Pro","key_features":"ANC","target_audience":"  "}`}}
	p := newPlanner(t, model, nil)

	_, err := p.Plan(context.Background(), Request{Text: "headphones"})
	if !errors.Is(err, domain.ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want ErrUpstreamGeneration", err)
	}
	if !strings.Contains(err.Error(), "target_audience") || !strings.Contains(err.Error(), "call_to_action") {
		t.Fatalf("error should name missing fields: %v", err)
	}
	if len(model.calls) != 1 {
		t.Fatalf("creation call should not run, calls = %d", len(model.calls))
	}
}

func TestPlanFailsWhenPlanFieldMissing(t *testing.T) {
	model := &scriptedModel{replies: []string{headphonesProfile, `{"script":"s","audio_prompt":"a","video_prompt":"v","image_prompt":"i"}`}}
	p := newPlanner(t, model, nil)

	_, err := p.Plan(context.Background(), Request{Text: "headphones"})
	if !errors.Is(err, domain.ErrUpstreamGeneration) || !strings.Contains(err.Error(), "caption") {
		t.Fatalf("err = %v, want upstream error naming caption", err)
	}
}

func TestPlanMalformedJSONIsUpstreamError(t *testing.T) {
	model := &scriptedModel{replies: []string{"I cannot help with that."}}
	p := newPlanner(t, model, nil)

	_, err := p.Plan(context.Background(), Request{Text: "headphones"})
	if !errors.Is(err, domain.ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want ErrUpstreamGeneration", err)
	}
	if len(model.calls) != 1 {
		t.Fatalf("planner must not retry, calls = %d", len(model.calls))
	}
}

func TestPlanTransportErrorIsUpstreamError(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("connection refused")}}
	p := newPlanner(t, model, nil)

	_, err := p.Plan(context.Background(), Request{Text: "headphones"})
	if !errors.Is(err, domain.ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want ErrUpstreamGeneration", err)
	}
}

func TestPlanRejectsEmptyText(t *testing.T) {
	p := newPlanner(t, &scriptedModel{}, nil)
	if _, err := p.Plan(context.Background(), Request{Text: "   "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestPlanFallsBackToDefaultTrends(t *testing.T) {
	model := &scriptedModel{replies: []string{headphonesProfile, headphonesPlan()}}
	p := newPlanner(t, model, failingTrends{})

	if _, err := p.Plan(context.Background(), Request{Text: "headphones"}); err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if !strings.Contains(model.calls[1].user, "Valentine's Day") {
		t.Fatal("expected default trend paragraph in creation call")
	}
}

func TestCreationInstructionCarriesLocaleAndRegion(t *testing.T) {
	model := &scriptedModel{replies: []string{headphonesProfile, headphonesPlan()}}
	p := newPlanner(t, model, nil)

	if _, err := p.Plan(context.Background(), Request{Text: "headphones", Locale: "id", Region: "ID"}); err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	system := model.calls[1].system
	if !strings.Contains(system, `"id"`) || !strings.Contains(system, "country ID") {
		t.Fatalf("instruction missing locale/region: %q", system)
	}
}

func TestOverlongCaptionIsKept(t *testing.T) {
	caption := strings.Repeat("x", domain.CaptionLimit+10)
	model := &scriptedModel{replies: []string{headphonesProfile, `{"script":"s","audio_prompt":"a","video_prompt":"v","image_prompt":"i","caption":"` + caption + `"}`}}
	p := newPlanner(t, model, nil)

	plan, err := p.Plan(context.Background(), Request{Text: "headphones"})
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if plan.Caption != caption || !plan.CaptionOverLimit() {
		t.Fatal("overlong caption should be kept and flagged")
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestExtractJSONFragment(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":     `{"a":1}`,
		"Sure! {\"a\":1} hope it helps": `{"a":1}`,
		"":                              "",
	}
	for in, want := range cases {
		if got := extractJSONFragment(in); got != want {
			t.Fatalf("extractJSONFragment(%q) = %q, want %q", in, got, want)
		}
	}
}
