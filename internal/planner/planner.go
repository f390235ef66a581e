// Package planner turns free-form product text into a ContentPlan using two
// sequential calls to a structured text model: product extraction followed by
// creative expansion.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reelgen/internal/domain"
	"reelgen/internal/domain/jsoncfg"
	"reelgen/internal/infra"
	"reelgen/internal/trends"
)

// TextModel is a structured-text backend. Complete sends one user message
// under a system instruction and returns the raw (ideally JSON) reply.
type TextModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// TrendSource supplies the trend context fed to the creation call.
type TrendSource interface {
	Context(ctx context.Context) (string, error)
}

// Request is a single planning request.
type Request struct {
	Text   string
	Locale string
	Region string
}

// Options configures a Planner.
type Options struct {
	Model     TextModel
	Templates jsoncfg.PlannerTemplates
	Trends    TrendSource
	Logger    *infra.Logger
}

// Planner produces content plans. It never retries: any failure aborts the
// plan.
type Planner struct {
	model     TextModel
	templates jsoncfg.PlannerTemplates
	trends    TrendSource
	logger    *infra.Logger
}

// New constructs a Planner. Templates are normalized with built-in defaults.
func New(opts Options) (*Planner, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("%w: planner text model is required", domain.ErrConfiguration)
	}
	tpl := opts.Templates
	tpl.Normalize("")
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	src := opts.Trends
	if src == nil {
		src = trends.Static("")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Planner{model: opts.Model, templates: tpl, trends: src, logger: logger}, nil
}

// Templates returns the normalized templates in use.
func (p *Planner) Templates() jsoncfg.PlannerTemplates {
	return p.templates
}

// Plan runs extraction then creation. Any transport failure or any missing
// field yields an error wrapping domain.ErrUpstreamGeneration.
func (p *Planner) Plan(ctx context.Context, req Request) (domain.ContentPlan, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.ContentPlan{}, fmt.Errorf("%w: text is empty", domain.ErrInvalidInput)
	}

	profile, err := p.Extract(ctx, text)
	if err != nil {
		return domain.ContentPlan{}, err
	}

	trendContext, err := p.trends.Context(ctx)
	if err != nil || strings.TrimSpace(trendContext) == "" {
		p.logger.Warn().Err(err).Msg("planner: trend source unavailable, using default")
		trendContext = trends.DefaultContext
	}

	return p.Create(ctx, profile, trendContext, req.Locale, req.Region)
}

// Extract performs the first call and validates the profile.
func (p *Planner) Extract(ctx context.Context, text string) (domain.ProductProfile, error) {
	raw, err := p.model.Complete(ctx, p.templates.Extraction, text)
	if err != nil {
		return domain.ProductProfile{}, domain.UpstreamGeneration(fmt.Errorf("extract product: %w", err))
	}
	profile, err := parseModelPayload[domain.ProductProfile](raw)
	if err != nil {
		return domain.ProductProfile{}, domain.UpstreamGeneration(fmt.Errorf("decode product profile: %w", err))
	}
	if missing := profile.MissingFields(); len(missing) > 0 {
		return domain.ProductProfile{}, domain.UpstreamGeneration(fmt.Errorf("product profile missing %s", strings.Join(missing, ", ")))
	}
	p.logger.Debug().Str("product_name", profile.Name).Msg("planner: product extracted")
	return profile, nil
}

// Create performs the second call from an already validated profile.
func (p *Planner) Create(ctx context.Context, profile domain.ProductProfile, trendContext, locale, region string) (domain.ContentPlan, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return domain.ContentPlan{}, domain.UpstreamGeneration(fmt.Errorf("encode product profile: %w", err))
	}
	user := fmt.Sprintf("Product details: %s\nTrend context: %s", profileJSON, strings.TrimSpace(trendContext))

	raw, err := p.model.Complete(ctx, p.creationInstruction(locale, region), user)
	if err != nil {
		return domain.ContentPlan{}, domain.UpstreamGeneration(fmt.Errorf("create content: %w", err))
	}
	plan, err := parseModelPayload[domain.ContentPlan](raw)
	if err != nil {
		return domain.ContentPlan{}, domain.UpstreamGeneration(fmt.Errorf("decode content plan: %w", err))
	}
	if missing := plan.MissingFields(); len(missing) > 0 {
		return domain.ContentPlan{}, domain.UpstreamGeneration(fmt.Errorf("content plan missing %s", strings.Join(missing, ", ")))
	}
	if plan.CaptionOverLimit() {
		p.logger.Warn().Int("caption_runes", len([]rune(plan.Caption))).Int("limit", domain.CaptionLimit).Msg("planner: caption exceeds recommended length")
	}
	if words := len(strings.Fields(plan.Script)); words < p.templates.ScriptWordsMin || words > p.templates.ScriptWordsMax {
		p.logger.Debug().Int("words", words).Msg("planner: script outside word-count guidance")
	}
	return plan, nil
}

func (p *Planner) creationInstruction(locale, region string) string {
	sb := &strings.Builder{}
	sb.WriteString(p.templates.CreationInstruction())
	if locale = strings.TrimSpace(locale); locale != "" && !strings.EqualFold(locale, jsoncfg.DefaultExtrasLocale) {
		fmt.Fprintf(sb, "\nWrite every field in the language identified by the BCP 47 tag %q.", locale)
	}
	if region = strings.TrimSpace(region); region != "" {
		fmt.Fprintf(sb, "\nThe primary audience is located in country %s.", region)
	}
	return sb.String()
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
