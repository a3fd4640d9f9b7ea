// Package answer turns assembled context into a cited answer. The prompt
// numbers every passage with a reference token, the model is told to cite
// those tokens, and whatever comes back is checked against the map of tokens
// that were actually offered. Citations of unknown tokens are dropped, never
// fatal.
package answer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"scholarag/internal/models"
	"scholarag/internal/providers"
	"scholarag/internal/retry"
)

// NoAnswerText is the sentence the model is instructed to emit when the
// sources cannot support an answer.
const NoAnswerText = "I could not find a definitive answer in the provided sources."

var refPattern = regexp.MustCompile(`\[(C\d+)\]`)

// ProviderSource yields generation providers in preference order.
type ProviderSource interface {
	LLMOrder() []providers.NamedLLMProvider
}

type Generator struct {
	source      ProviderSource
	policy      *retry.Policy
	temperature float64
	audit       providers.CallAuditor
	log         *logrus.Entry
}

func NewGenerator(source ProviderSource, policy *retry.Policy, temperature float64, audit providers.CallAuditor, log *logrus.Entry) *Generator {
	return &Generator{
		source:      source,
		policy:      policy,
		temperature: temperature,
		audit:       audit,
		log:         log,
	}
}

type Answer struct {
	Text             string
	Citations        []models.Citation
	Provider         providers.ProviderInfo
	DroppedCitations int
}

// Generate produces one answer for the query from the given passages. It
// calls the generation providers in order until one returns a non-empty
// response, retrying each according to the shared policy.
func (g *Generator) Generate(ctx context.Context, query string, passages []models.Passage, titles map[string]string) (Answer, error) {
	if len(passages) == 0 {
		return Answer{}, fmt.Errorf("generate answer: no context passages")
	}
	prompt, refMap := BuildPrompt(query, passages, titles)

	var (
		resp providers.GenerateResponse
		info providers.ProviderInfo
	)
	lastErr := errors.New("no generation providers configured")
	for _, cand := range g.source.LLMOrder() {
		p := cand.Provider
		start := time.Now()
		err := g.policy.Do(ctx, "generate answer", func(ctx context.Context) error {
			var callErr error
			resp, info, callErr = p.Generate(ctx, providers.GenerateRequest{
				Operation:   "ask",
				Prompt:      prompt,
				Temperature: g.temperature,
			})
			return callErr
		})
		if g.audit != nil {
			g.audit.RecordCall(ctx, info, "generate_answer", time.Since(start), err)
		}
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			lastErr = nil
			break
		}
		if err == nil {
			err = fmt.Errorf("provider %s returned an empty answer", cand.Ref.Name)
		}
		lastErr = err
		if g.log != nil {
			g.log.WithFields(logrus.Fields{
				"provider": cand.Ref.Name,
				"error":    err.Error(),
			}).Warn("generation provider failed, trying next")
		}
	}
	if lastErr != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", lastErr)
	}

	text, citations, dropped := ResolveCitations(resp.Text, refMap, titles)
	if dropped > 0 && g.log != nil {
		g.log.WithFields(logrus.Fields{
			"provider": info.Name,
			"dropped":  dropped,
		}).Warn("answer cited sources that were never offered")
	}
	return Answer{
		Text:             text,
		Citations:        citations,
		Provider:         info,
		DroppedCitations: dropped,
	}, nil
}

// BuildPrompt renders the grounded prompt and returns the map of reference
// tokens to the paper each one stands for. The map is the only authority on
// which citations are valid for this request.
func BuildPrompt(query string, passages []models.Passage, titles map[string]string) (string, map[string]string) {
	refMap := make(map[string]string, len(passages))

	var sources strings.Builder
	for i, p := range passages {
		token := fmt.Sprintf("C%d", i+1)
		refMap[token] = p.PaperID
		title := titles[p.PaperID]
		if title == "" {
			title = p.PaperID
		}
		fmt.Fprintf(&sources, "[%s] %s: %s\n\n", token, title, p.Text)
	}

	prompt := "" +
		"You are an expert research assistant and an excellent tutor.\n" +
		"Answer the question using ONLY the numbered sources below. Do NOT use outside knowledge.\n\n" +

		"Citation rules:\n" +
		"- Cite sources like [C1], [C2] immediately after the claim they support.\n" +
		"- Multiple citations may be combined like [C1][C3].\n" +
		"- Never cite a source id that is not listed below.\n\n" +

		"Begin with a direct answer, then explain the key concepts the sources cover.\n" +
		"If the sources do not contain enough information to answer the question, you must state: \"" + NoAnswerText + "\"\n\n" +

		"SOURCES:\n" + sources.String() +
		"QUESTION:\n" + query + "\n\n" +
		"YOUR HELPFUL AND DETAILED ANSWER:\n"

	return prompt, refMap
}

// ResolveCitations extracts the reference tokens the answer used, in order of
// first appearance, and binds each to its paper. Tokens absent from refMap
// are stripped from the text and counted instead of failing the answer.
func ResolveCitations(text string, refMap map[string]string, titles map[string]string) (string, []models.Citation, int) {
	matches := refPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	citations := make([]models.Citation, 0, len(matches))
	dropped := 0

	for _, m := range matches {
		token := m[1]
		if seen[token] {
			continue
		}
		seen[token] = true

		paperID, ok := refMap[token]
		if !ok {
			dropped++
			text = strings.ReplaceAll(text, " ["+token+"]", "")
			text = strings.ReplaceAll(text, "["+token+"]", "")
			continue
		}
		citations = append(citations, models.Citation{
			Ref:     token,
			PaperID: paperID,
			Title:   titles[paperID],
		})
	}
	return text, citations, dropped
}
