package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/guideforge/guideforge/pkg/metrics"
)

const systemPrompt = `You convert product assembly documents into structured
step-by-step guides. Read the document at the URL the user provides and
respond with a single JSON object:
{"steps":[{"title":"...","instruction":"...","illustrationUrl":"...","tip":"..."}],
"overallConfidence":0.0,"qualityFlags":["..."],"sourcePageCount":0}
overallConfidence is your own estimate in [0,1] of how faithfully the steps
reflect the document. Add a quality flag for anything you could not read.
Respond with JSON only.`

// AnthropicGenerator implements the generation boundary on top of the
// Anthropic messages API.
type AnthropicGenerator struct {
	client sdk.Client
	model  string
	tokens int64
}

var _ Generator = (*AnthropicGenerator)(nil)

func NewAnthropicGenerator(apiKey, model string, maxTokens int64) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		tokens: maxTokens,
	}
}

// providerArtifact is the JSON shape the prompt asks the model for.
type providerArtifact struct {
	Steps             []Step   `json:"steps"`
	OverallConfidence float64  `json:"overallConfidence"`
	QualityFlags      []string `json:"qualityFlags"`
	SourcePageCount   int      `json:"sourcePageCount"`
}

func (g *AnthropicGenerator) Generate(ctx context.Context, input Input) (*Artifact, error) {
	logger := zap.S().Named("generation")

	prompt := fmt.Sprintf("Generate the assembly guide for the document at: %s", input.DocumentURL)
	msg, err := g.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.tokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		metrics.IncreaseProviderCallsMetric("error")
		return nil, fmt.Errorf("provider call for job %s: %w", input.JobID, err)
	}
	metrics.IncreaseProviderCallsMetric("ok")

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	var parsed providerArtifact
	if err := json.Unmarshal([]byte(extractJSON(text.String())), &parsed); err != nil {
		return nil, fmt.Errorf("decoding provider output for job %s: %w", input.JobID, err)
	}

	logger.Infow("generated guide artifact",
		"job_id", input.JobID,
		"steps", len(parsed.Steps),
		"confidence", parsed.OverallConfidence,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)

	return &Artifact{
		Steps:             parsed.Steps,
		OverallConfidence: parsed.OverallConfidence,
		QualityFlags:      parsed.QualityFlags,
		Metadata: Metadata{
			PrimaryModel:    string(msg.Model),
			SourcePageCount: parsed.SourcePageCount,
		},
	}, nil
}

// extractJSON trims any prose the model wrapped around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
