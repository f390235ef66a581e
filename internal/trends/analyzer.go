package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"reelgen/internal/domain"
	"reelgen/internal/providers/genai"
)

const analystInstruction = `You are a short-form video analyst. Analyze the video and its metadata to extract what makes it go viral.
Return a JSON object with exactly these keys:
"viral_elements": a paragraph describing what makes the video viral,
"recommendations": suggestions for improving future videos,
"metadata_summary": a summary of the scraped metadata (likes, comments, captions).`

// MediaModel is the multimodal call the analyser needs.
type MediaModel interface {
	AnalyzeMedia(ctx context.Context, req genai.MediaAnalysisRequest) (string, error)
}

// Analysis is what the model extracted from one reference video.
type Analysis struct {
	ViralElements   string `json:"viral_elements"`
	Recommendations string `json:"recommendations"`
	MetadataSummary string `json:"metadata_summary"`
}

// Analyzer studies a reference video that performed well and distils trend
// notes the File source can later feed to the planner.
type Analyzer struct {
	model MediaModel
	now   func() time.Time
}

// NewAnalyzer wires the multimodal model.
func NewAnalyzer(model MediaModel) *Analyzer {
	return &Analyzer{model: model, now: time.Now}
}

// Analyze sends the clip and its scraped metadata to the model. Every field of
// the answer is required; a partial answer is an upstream generation error.
func (a *Analyzer) Analyze(ctx context.Context, video []byte, mimeType string, metadata map[string]any) (Analysis, error) {
	if len(video) == 0 {
		return Analysis{}, fmt.Errorf("%w: reference video is empty", domain.ErrInvalidInput)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: metadata: %v", domain.ErrInvalidInput, err)
	}
	prompt := "Analyze this video and its metadata:\nMetadata: " + string(meta) +
		"\nExplain what makes it viral and recommend improvements."

	raw, err := a.model.AnalyzeMedia(ctx, genai.MediaAnalysisRequest{
		Data:     video,
		MIMEType: mimeType,
		System:   analystInstruction,
		Prompt:   prompt,
	})
	if err != nil {
		return Analysis{}, domain.UpstreamGeneration(err)
	}
	return parseAnalysis(raw)
}

func parseAnalysis(raw string) (Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return Analysis{}, domain.UpstreamGeneration(fmt.Errorf("analysis is not a JSON object: %w", err))
	}
	var out Analysis
	var missing []string
	for key, dst := range map[string]*string{
		"viral_elements":   &out.ViralElements,
		"recommendations":  &out.Recommendations,
		"metadata_summary": &out.MetadataSummary,
	} {
		*dst = flatten(fields[key])
		if *dst == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return Analysis{}, domain.UpstreamGeneration(fmt.Errorf("analysis missing %s", strings.Join(missing, ", ")))
	}
	return out, nil
}

// flatten returns strings as-is, joins lists with "; " and compacts objects.
func flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				parts = append(parts, strings.TrimSpace(str))
				continue
			}
			b, _ := json.Marshal(item)
			parts = append(parts, string(b))
		}
		return strings.TrimSpace(strings.Join(parts, "; "))
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

// AppendDaily appends a dated analysis block to a text file that a File
// source can read back as trend context.
func (a *Analyzer) AppendDaily(path string, an Analysis) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("trends: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("trends: open %s: %w", path, err)
	}
	defer f.Close()
	block := fmt.Sprintf("\n\n=== Analysis on %s ===\nViral Elements: %s\nRecommendations: %s\nMetadata Summary: %s\n",
		a.now().Format("2006-01-02 15:04:05"), an.ViralElements, an.Recommendations, an.MetadataSummary)
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("trends: append %s: %w", path, err)
	}
	return nil
}

type historyEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Analysis  Analysis  `json:"analysis"`
}

// AppendHistory adds the analysis under today's date in a JSON history file
// keyed by YYYY-MM-DD.
func (a *Analyzer) AppendHistory(path string, an Analysis) error {
	history := map[string][]historyEntry{}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("trends: read %s: %w", path, err)
	case len(bytes.TrimSpace(raw)) > 0:
		if err := json.Unmarshal(raw, &history); err != nil {
			return fmt.Errorf("trends: decode %s: %w", path, err)
		}
	}
	now := a.now()
	day := now.Format("2006-01-02")
	history[day] = append(history[day], historyEntry{Timestamp: now, Analysis: an})

	out, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("trends: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("trends: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
