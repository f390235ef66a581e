package jsoncfg

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PlannerTemplates holds the instructions sent to the text model. Variants
// (platform, clip length, tone) are expressed as separate template files
// rather than separate planner code.
type PlannerTemplates struct {
	Version        string `json:"version"`
	Platform       string `json:"platform"`
	Extraction     string `json:"extraction"`
	Creation       string `json:"creation"`
	ClipSeconds    int    `json:"clip_seconds"`
	ScriptWordsMin int    `json:"script_words_min"`
	ScriptWordsMax int    `json:"script_words_max"`
	CaptionLimit   int    `json:"caption_limit"`
	Locale         string `json:"locale"`
}

const (
	// DefaultTemplateVersion is applied to templates that omit a version.
	DefaultTemplateVersion = "2025-02"
	// DefaultPlatform names the social network the plan targets.
	DefaultPlatform = "TikTok/X"
	// DefaultClipSeconds is the narration length requested from the model.
	DefaultClipSeconds = 10
	// DefaultScriptWordsMin is the lower word-count guidance for the script.
	DefaultScriptWordsMin = 120
	// DefaultScriptWordsMax is the upper word-count guidance for the script.
	DefaultScriptWordsMax = 150
	// DefaultCaptionLimit mirrors domain.CaptionLimit.
	DefaultCaptionLimit = 125
	// DefaultExtrasLocale is applied when no locale preference is provided.
	DefaultExtrasLocale = "en"
)

// DefaultExtraction is the stage-one instruction.
const DefaultExtraction = `You are a marketing assistant. Extract product details from the input and return a JSON with:
1. product_name: A creative name for the product (5 words max).
2. key_features: A paragraph listing 3-5 main selling points in a natural, flowing sentence.
3. target_audience: A short paragraph describing the primary demographic.
4. call_to_action: A short, actionable phrase (e.g., "Shop now!").`

// DefaultCreation is the stage-two instruction. It is rendered with the
// platform, clip length, word range and caption limit.
const DefaultCreation = `You are a viral content creator. Generate content for a %[2]d-second %[1]s post. Return a JSON with:
1. script: A paragraph with the %[2]d-second narration (%[3]d-%[4]d words)
2. audio_prompt: A paragraph describing the voiceover and the speaker's tone for the post that will be combined with the video.
3. video_prompt: A paragraph describing a single-scene video (%[2]ds) with product focus and visual style.
4. image_prompt: A paragraph describing a static image for the product post.
5. caption: A single paragraph combining the caption and hashtags (%[5]d chars max).`

// DefaultPlannerTemplates returns the built-in templates.
func DefaultPlannerTemplates() PlannerTemplates {
	t := PlannerTemplates{}
	t.Normalize("")
	return t
}

// LoadPlannerTemplates reads templates from a JSON file. An empty path yields
// the defaults.
func LoadPlannerTemplates(path string) (PlannerTemplates, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPlannerTemplates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return PlannerTemplates{}, fmt.Errorf("read planner templates: %w", err)
	}
	var t PlannerTemplates
	if err := json.Unmarshal(raw, &t); err != nil {
		return PlannerTemplates{}, fmt.Errorf("decode planner templates: %w", err)
	}
	t.Normalize("")
	if err := t.Validate(); err != nil {
		return PlannerTemplates{}, err
	}
	return t, nil
}

// Normalize fills missing fields with server defaults.
func (t *PlannerTemplates) Normalize(preferredLocale string) {
	if t == nil {
		return
	}
	if t.Version == "" {
		t.Version = DefaultTemplateVersion
	}
	if strings.TrimSpace(t.Platform) == "" {
		t.Platform = DefaultPlatform
	}
	if strings.TrimSpace(t.Extraction) == "" {
		t.Extraction = DefaultExtraction
	}
	if strings.TrimSpace(t.Creation) == "" {
		t.Creation = DefaultCreation
	}
	if t.ClipSeconds <= 0 {
		t.ClipSeconds = DefaultClipSeconds
	}
	if t.ScriptWordsMin <= 0 {
		t.ScriptWordsMin = DefaultScriptWordsMin
	}
	if t.ScriptWordsMax <= 0 {
		t.ScriptWordsMax = DefaultScriptWordsMax
	}
	if t.CaptionLimit <= 0 {
		t.CaptionLimit = DefaultCaptionLimit
	}
	if t.Locale == "" {
		if preferredLocale != "" {
			t.Locale = preferredLocale
		} else {
			t.Locale = DefaultExtrasLocale
		}
	}
}

// Validate rejects templates that cannot produce a usable instruction.
func (t PlannerTemplates) Validate() error {
	if t.ScriptWordsMin > t.ScriptWordsMax {
		return fmt.Errorf("script_words_min (%d) exceeds script_words_max (%d)", t.ScriptWordsMin, t.ScriptWordsMax)
	}
	if !strings.Contains(t.Extraction, "product_name") {
		return fmt.Errorf("extraction template must name the product_name field")
	}
	for _, field := range []string{"script", "audio_prompt", "video_prompt", "image_prompt", "caption"} {
		if !strings.Contains(t.Creation, field) {
			return fmt.Errorf("creation template must name the %s field", field)
		}
	}
	return nil
}

// CreationInstruction renders the stage-two instruction.
func (t PlannerTemplates) CreationInstruction() string {
	if !strings.Contains(t.Creation, "%[") {
		return t.Creation
	}
	return fmt.Sprintf(t.Creation, t.Platform, t.ClipSeconds, t.ScriptWordsMin, t.ScriptWordsMax, t.CaptionLimit)
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
