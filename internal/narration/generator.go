package narration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recapforge/recap/internal/clients"
)

const (
	structuredBatchSize = 3
	fallbackBatchSize   = 5
	batchGap            = 2 * time.Second
	qualityGateRatio    = 0.30
	qualityGateMinWords = 10
)

// Request bundles S10's inputs: chapters, structured extraction data,
// the audio transcript, and the optional target duration / character
// guide / user script.
type Request struct {
	Chapters       []Chapter
	Structured     *clients.StructuredMovieData
	Transcript     []clients.TranscriptSegment
	TargetSeconds  float64 // 0 means unset
	CharacterGuide string
	UserScript     string // raw text from {job_id}/script.txt, empty if none
	KeyMoments     map[int][]clients.KeyMoment
}

// Generator drives the three S10 narration strategies over an
// LLMClient.
type Generator struct {
	llm      clients.LLMClient
	batchGap time.Duration
}

// NewGenerator builds a Generator over llm.
func NewGenerator(llm clients.LLMClient) *Generator {
	return &Generator{llm: llm, batchGap: batchGap}
}

// Generate produces one narration string per chapter (spec §4.3-S10).
func (g *Generator) Generate(ctx context.Context, req Request) ([]string, error) {
	if len(req.Chapters) == 0 {
		return nil, fmt.Errorf("narration: no chapters to generate")
	}

	var (
		narrations  []string
		err         error
		usedBudgets []int
	)

	switch {
	case strings.TrimSpace(req.UserScript) != "":
		narrations = SplitUserScript(req.UserScript, req.Chapters)
	case hasStructuredContent(req.Structured):
		budgets := WordBudgets(req.Chapters, req.TargetSeconds)
		narrations, err = g.structuredBatch(ctx, req, budgets)
		if err != nil {
			return nil, err
		}
		usedBudgets = budgets
		if !passesQualityGate(narrations) {
			narrations, err = g.fallbackBatch(ctx, req)
			if err != nil {
				return nil, err
			}
			usedBudgets = nil
		}
	default:
		narrations, err = g.fallbackBatch(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	for i := range narrations {
		narrations[i] = Clean(narrations[i])
	}

	if usedBudgets != nil && req.TargetSeconds > 0 {
		narrations, err = g.retryIfShort(ctx, req, narrations, usedBudgets)
		if err != nil {
			return nil, err
		}
	}

	return narrations, nil
}

func hasStructuredContent(s *clients.StructuredMovieData) bool {
	return s != nil && (len(s.Characters) > 0 || len(s.Scenes) > 0)
}

// retryIfShort retries the structured strategy once with boosted word
// budgets if the predicted runtime falls short of 80% of target (spec
// §4.3-S10).
func (g *Generator) retryIfShort(ctx context.Context, req Request, narrations []string, budgets []int) ([]string, error) {
	predicted := PredictedDurationSeconds(totalWords(narrations))
	if predicted >= req.TargetSeconds*0.8 {
		return narrations, nil
	}
	boosted := BoostedWordBudgets(budgets, req.TargetSeconds, predicted)
	retried, err := g.structuredBatch(ctx, req, boosted)
	if err != nil {
		return narrations, nil // keep the original result rather than failing the stage
	}
	for i := range retried {
		retried[i] = Clean(retried[i])
	}
	return retried, nil
}

// structuredBatch runs strategy 2: batches of structuredBatchSize
// chapters, each sharing a single combined prompt grounded on
// structured data and per-chapter word budgets, parsed back as a JSON
// array (spec §4.3-S10, §4.4).
func (g *Generator) structuredBatch(ctx context.Context, req Request, budgets []int) ([]string, error) {
	return g.batchedGenerate(ctx, req, budgets, structuredBatchSize)
}

// fallbackBatch runs strategy 3: a parallel rewrite call per chapter,
// fanned out fallbackBatchSize at a time with no structured-data
// grounding (spec §4.3-S10: "Parallel rewrite per chapter (batch size
// 5) without structured-data grounding").
func (g *Generator) fallbackBatch(ctx context.Context, req Request) ([]string, error) {
	budgets := WordBudgets(req.Chapters, req.TargetSeconds)
	total := len(req.Chapters)
	results := make([]string, total)

	for start := 0; start < total; start += fallbackBatchSize {
		end := start + fallbackBatchSize
		if end > total {
			end = total
		}

		group, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			group.Go(func() error {
				text, err := g.rewriteChapter(gctx, req.Chapters[i], i, total, budgets[i])
				if err != nil {
					return err
				}
				results[i] = text
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, fmt.Errorf("narration fallback batch %d-%d: %w", start, end, err)
		}

		if end < total && g.batchGap > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchGap):
			}
		}
	}

	return results, nil
}

// rewriteChapter rewrites a single chapter's description into narration
// with no structured-data grounding.
func (g *Generator) rewriteChapter(ctx context.Context, ch Chapter, index, total, wordBudget int) (string, error) {
	prompt := fmt.Sprintf("Rewrite this %s-phase chapter summary as vivid recap narration in about %d words:\n\n%s", phaseLabel(index, total), wordBudget, ch.Description)
	result, err := g.llm.Chat(ctx, clients.ChatRequest{
		Messages: []clients.ChatMessage{
			{Role: "system", Content: narrationSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(result.Content)
	if text == "" {
		text = ch.Description
	}
	return text, nil
}

func (g *Generator) batchedGenerate(ctx context.Context, req Request, budgets []int, batchSize int) ([]string, error) {
	total := len(req.Chapters)
	results := make([]string, total)

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batchChapters := req.Chapters[start:end]
		batchBudgets := budgets[start:end]

		userPrompt := buildBatchPrompt(batchChapters, start, total, req.Structured, batchBudgets, req.KeyMoments, req.CharacterGuide)

		content, err := g.llm.Chat(ctx, clients.ChatRequest{
			Messages: []clients.ChatMessage{
				{Role: "system", Content: narrationSystemPrompt},
				{Role: "user", Content: userPrompt},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("narration batch %d-%d: %w", start, end, err)
		}

		batchResult := parseNarrationArray(content.Content, len(batchChapters))
		for i, text := range batchResult {
			if strings.TrimSpace(text) == "" {
				text = batchChapters[i].Description
			}
			results[start+i] = text
		}

		if end < total && g.batchGap > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchGap):
			}
		}
	}

	return results, nil
}

// parseNarrationArray parses the LLM's JSON array response, falling
// back to line-by-line extraction on parse failure (spec §4.4: "Parse
// the response as a JSON array; on parse failure fall back to
// line-by-line extraction").
func parseNarrationArray(content string, want int) []string {
	raw, err := clients.ParseStructuredJSON(content)
	if err == nil {
		var arr []string
		if jsonErr := json.Unmarshal(raw, &arr); jsonErr == nil {
			return padTo(arr, want)
		}
	}

	lines := strings.Split(content, "\n")
	var cleaned []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "-")
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		cleaned = append(cleaned, l)
	}
	return padTo(cleaned, want)
}

func padTo(values []string, want int) []string {
	out := make([]string, want)
	for i := 0; i < want && i < len(values); i++ {
		out[i] = values[i]
	}
	return out
}

// passesQualityGate reports whether at least qualityGateRatio of
// narrations are both longer than qualityGateMinWords and free of
// meta-language (spec §4.3-S10's strategy-2 quality gate).
func passesQualityGate(narrations []string) bool {
	if len(narrations) == 0 {
		return false
	}
	passing := 0
	for _, n := range narrations {
		if wordCount(n) > qualityGateMinWords && !ContainsBlacklistedPhrase(n) {
			passing++
		}
	}
	return float64(passing)/float64(len(narrations)) >= qualityGateRatio
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func totalWords(narrations []string) int {
	total := 0
	for _, n := range narrations {
		total += wordCount(n)
	}
	return total
}

// GenerateIntro produces a 20-30 word AI intro (spec §4.3-S10).
func (g *Generator) GenerateIntro(ctx context.Context, structured *clients.StructuredMovieData) (string, error) {
	var plot string
	if structured != nil {
		plot = structured.PlotSummary
	}
	result, err := g.llm.Chat(ctx, clients.ChatRequest{
		Messages: []clients.ChatMessage{
			{Role: "system", Content: "Write a punchy 20-30 word recap intro. No meta-language about video or screens."},
			{Role: "user", Content: plot},
		},
		MaxTokens: 120,
	})
	if err != nil {
		return "", fmt.Errorf("generate intro: %w", err)
	}
	return Clean(result.Content), nil
}

// outroTemplates are template-based outros selected randomly (spec
// §4.3-S10: "select a template-based outro with randomized
// structure"). The caller supplies the random index so results stay
// deterministic under test.
var outroTemplates = []string{
	"And that's where we leave it, for now.",
	"The story continues, but this is where our recap ends.",
	"More awaits beyond this point, but our journey here concludes.",
}

// Outro returns the outro template at index i, wrapped to the
// available template count.
func Outro(i int) string {
	if len(outroTemplates) == 0 {
		return ""
	}
	return outroTemplates[((i%len(outroTemplates))+len(outroTemplates))%len(outroTemplates)]
}
