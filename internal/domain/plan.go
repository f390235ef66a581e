package domain

import (
	"strings"
	"unicode/utf8"
)

// CaptionLimit is the caption length the text model is asked to respect.
const CaptionLimit = 125

// ProductProfile is the first-stage extraction of the user's product.
type ProductProfile struct {
	Name           string `json:"product_name"`
	KeyFeatures    string `json:"key_features"`
	TargetAudience string `json:"target_audience"`
	CallToAction   string `json:"call_to_action"`
}

// MissingFields lists required profile fields that are absent or blank.
func (p ProductProfile) MissingFields() []string {
	return missing(map[string]string{
		"product_name":    p.Name,
		"key_features":    p.KeyFeatures,
		"target_audience": p.TargetAudience,
		"call_to_action":  p.CallToAction,
	}, []string{"product_name", "key_features", "target_audience", "call_to_action"})
}

// ContentPlan is the multi-modal creative brief consumed by the synthesizers.
type ContentPlan struct {
	Script      string `json:"script"`
	AudioPrompt string `json:"audio_prompt"`
	VideoPrompt string `json:"video_prompt"`
	ImagePrompt string `json:"image_prompt"`
	Caption     string `json:"caption"`
}

// MissingFields lists required plan fields that are absent or blank.
func (p ContentPlan) MissingFields() []string {
	return missing(map[string]string{
		"script":       p.Script,
		"audio_prompt": p.AudioPrompt,
		"video_prompt": p.VideoPrompt,
		"image_prompt": p.ImagePrompt,
		"caption":      p.Caption,
	}, []string{"script", "audio_prompt", "video_prompt", "image_prompt", "caption"})
}

// CaptionOverLimit reports whether the caption exceeds CaptionLimit characters.
// Overlong captions are kept as-is.
func (p ContentPlan) CaptionOverLimit() bool {
	return utf8.RuneCountInString(p.Caption) > CaptionLimit
}

func missing(values map[string]string, order []string) []string {
	var out []string
	for _, k := range order {
		if strings.TrimSpace(values[k]) == "" {
			out = append(out, k)
		}
	}
	return out
}
