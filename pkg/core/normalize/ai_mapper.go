package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"google.golang.org/genai"

	"valuation_workbench/pkg/core/coa"
)

// GeminiMapper maps unmatched line-item labels to canonical codes with a
// Gemini call. Responses are schema-checked Go-side; malformed JSON goes
// through repair before being rejected.
type GeminiMapper struct {
	APIKey string
	Model  string
	reg    *coa.Registry
}

// NewGeminiMapper builds the mapper against a canonical registry.
func NewGeminiMapper(apiKey, model string, reg *coa.Registry) *GeminiMapper {
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}
	return &GeminiMapper{APIKey: apiKey, Model: model, reg: reg}
}

var _ LabelMapper = (*GeminiMapper)(nil)

// mappingResponse is the schema the model must produce.
type mappingResponse struct {
	Mappings []Suggestion `json:"mappings"`
}

// MapLabels asks the model to place each label on the canonical schema.
// Labels the model cannot place confidently come back with an empty code or a
// low confidence; the normalizer applies the threshold.
func (g *GeminiMapper) MapLabels(ctx context.Context, labels []string, stmt coa.StatementType) ([]Suggestion, error) {
	if g.APIKey == "" {
		return nil, fmt.Errorf("gemini mapper: API key not configured")
	}
	if len(labels) == 0 {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model,
		genai.Text(g.buildPrompt(labels, stmt)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini mapping call: %w", err)
	}
	raw := resp.Text()

	var parsed mappingResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		// LLM output is not always valid JSON; repair before giving up.
		repaired, repErr := jsonrepair.RepairJSON(raw)
		if repErr != nil {
			return nil, fmt.Errorf("mapping response unparseable: %v (repair: %v)", err, repErr)
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return nil, fmt.Errorf("mapping response invalid after repair: %w", err)
		}
	}

	// Discard hallucinated codes so a bad suggestion can never enter the
	// statement.
	out := make([]Suggestion, 0, len(parsed.Mappings))
	for _, s := range parsed.Mappings {
		if s.Code == "" {
			continue
		}
		if _, ok := g.reg.Lookup(s.Code); !ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

const systemInstruction = `You map financial statement line-item labels onto a fixed canonical chart of accounts.
Respond with JSON only: {"mappings": [{"source_label": "...", "canonical_code": "...", "confidence": 0.0}]}.
Use an empty canonical_code when no canonical item fits. Confidence is 0.0-1.0.`

func (g *GeminiMapper) buildPrompt(labels []string, stmt coa.StatementType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statement type: %s\n\nCanonical chart of accounts:\n", stmt)
	for _, li := range g.reg.Items() {
		if stmt != "" && li.Statement != stmt {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s", li.Code, li.DisplayName)
		if len(li.Aliases) > 0 {
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(li.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nMap each of these labels:\n")
	for _, l := range labels {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	return b.String()
}
