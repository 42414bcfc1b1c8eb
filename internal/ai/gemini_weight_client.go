package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
	"google.golang.org/genai"
)

const (
	DefaultWeightModel = "gemini-2.5-flash"
	maxSuggestedKg     = 50.0
)

// ErrNoEstimate is returned when the model declines to guess.
var ErrNoEstimate = errors.New("no_estimate")

// WeightEstimate is advisory only; matching never reads it.
type WeightEstimate struct {
	WeightKg float64 `json:"weightKg"`
	Model    string  `json:"model"`
}

type WeightEstimator interface {
	Estimate(ctx context.Context, q WeightQuery) (*WeightEstimate, error)
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error)

type GeminiWeightClient struct {
	model    string
	timeout  time.Duration
	generate generateFunc
}

// NewGeminiWeightClient builds a client against the Gemini API. An empty apiKey falls back to
// the GEMINI_API_KEY / GOOGLE_API_KEY environment variables read by genai itself.
func NewGeminiWeightClient(ctx context.Context, apiKey, model string) (*GeminiWeightClient, error) {
	cfg := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newWeightClient(model, func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
		res, err := client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return "", err
		}
		return res.Text(), nil
	}), nil
}

func newWeightClient(model string, gen generateFunc) *GeminiWeightClient {
	if model == "" {
		model = DefaultWeightModel
	}
	return &GeminiWeightClient{model: model, timeout: 20 * time.Second, generate: gen}
}

// Estimate asks Gemini for the packed weight of a single unit and parses the answer.
func (c *GeminiWeightClient) Estimate(ctx context.Context, q WeightQuery) (*WeightEstimate, error) {
	rid := reqctx.RID(ctx)
	if strings.TrimSpace(q.ProductName) == "" {
		return nil, errors.New("product name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(weightInstructions),
		genai.NewPartFromText(BuildWeightPrompt(q)),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	temp := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	genStart := time.Now()
	log.Printf("[weight] rid=%s stage=gemini_start model=%s", rid, c.model)
	rawText, err := c.generate(ctx, c.model, contents, config)
	if err != nil {
		log.Printf("[weight] rid=%s stage=gemini_fail model=%s err=%v", rid, c.model, err)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	genMs := time.Since(genStart).Milliseconds()
	kg, err := ParseWeightKg(rawText)
	if err != nil {
		text := strings.ReplaceAll(rawText, "\n", " ")
		if len(text) > 80 {
			text = text[:80]
		}
		log.Printf("[weight] rid=%s stage=parse_fail len=%d text=%q err=%v", rid, len(rawText), text, err)
		return nil, err
	}
	if kg <= 0 {
		log.Printf("[weight] rid=%s stage=no_estimate genMs=%d", rid, genMs)
		return nil, ErrNoEstimate
	}
	kg = math.Min(math.Round(kg*100)/100, maxSuggestedKg)
	if kg == 0 {
		kg = 0.01
	}
	log.Printf("[weight] rid=%s stage=parse_ok value=%.2f genMs=%d", rid, kg, genMs)
	return &WeightEstimate{WeightKg: kg, Model: c.model}, nil
}
