package image

import "strings"

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, extra limbs, text artefacts, watermark, caption text"

// BuildStillPrompt turns the plan's image prompt into the instruction sent to
// the image model. The still is later animated, so it asks for a single clean
// frame without overlaid text.
func BuildStillPrompt(imagePrompt string, hasReference bool) string {
	prompt := strings.TrimSpace(imagePrompt)
	lines := []string{prompt}
	if hasReference {
		lines = append(lines, "Use the uploaded product photo as the main subject. Preserve its shape, texture, and logo without warping.")
	}
	lines = append(lines, "Single frame, no overlaid text, subject centred with room for camera motion.")
	return strings.Join(lines, "\n")
}
