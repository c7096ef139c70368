package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// llmInvoker abstracts the provider call so workflows can be exercised
// without network access.
type llmInvoker func(ctx context.Context, cfg Config, systemPrompt, userPrompt string) (string, LLMUsage, error)

// analysisPoint is the bounded projection of an EnergyRecord sent to the
// model. Only these four fields go into the prompt to keep it small.
type analysisPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	UsageKWh   float64   `json:"usage_kwh"`
	DeviceType string    `json:"device_type"`
	IsPeakHour bool      `json:"is_peak_hour"`
}

type optimizedPoint struct {
	Timestamp      string  `json:"timestamp"`
	OriginalUsage  float64 `json:"original_usage"`
	OptimizedUsage float64 `json:"optimized_usage"`
}

// aiAnalysis is the decoded, defaulted analysis response. Missing numerics
// are zero, the green score is clamped, recommendations are capped and their
// difficulty normalized. trees_equivalent is intentionally absent: it is
// derived locally.
type aiAnalysis struct {
	OptimizedData         []optimizedPoint
	TotalUsageBefore      float64
	TotalUsageAfter       float64
	EnergySavedKWh        float64
	EnergySavedPercentage float64
	CO2ReducedKg          float64
	CostSavedUSD          float64
	GreenScore            int
	Recommendations       []Recommendation
}

func analyzeEnergyUsage(ctx context.Context, cfg Config, points []analysisPoint, invoke llmInvoker) (aiAnalysis, LLMUsage, error) {
	systemPrompt, userPrompt := buildAnalysisPrompts(points)
	log.Printf("llm analyze provider=%s points=%d", cfg.LLMProvider, len(points))

	responseText, usage, err := invoke(ctx, cfg, systemPrompt, userPrompt)
	if err != nil {
		return aiAnalysis{}, usage, err
	}

	analysis, parseErr := parseAnalysisResponse(responseText)
	if parseErr != nil {
		return aiAnalysis{}, usage, parseErr
	}
	return analysis, usage, nil
}

func buildAnalysisPrompts(points []analysisPoint) (string, string) {
	systemPrompt := fmt.Sprintf(`You are an energy optimization expert. Analyze the energy consumption data provided by the user and provide optimization recommendations.

Please provide:
1. Optimized energy usage schedule (reduce consumption by 15-30%%)
2. Calculate total energy savings in kWh and percentage
3. Estimate CO2 reduction (%.1f kg CO2 per kWh saved)
4. Calculate cost savings ($%.2f per kWh)
5. Provide %d specific actionable recommendations
6. Assign a green score (0-100) based on potential savings

Be specific and practical with recommendations.

Respond with JSON only (no markdown) matching this shape:
{
  "optimized_data": [{"timestamp": "...", "original_usage": 0.0, "optimized_usage": 0.0}, ...],
  "total_usage_before": 0.0,
  "total_usage_after": 0.0,
  "energy_saved_kwh": 0.0,
  "energy_saved_percentage": 0.0,
  "co2_reduced_kg": 0.0,
  "cost_saved_usd": 0.0,
  "green_score": 0,
  "recommendations": [{"title": "...", "description": "...", "savings_potential": "...", "difficulty": "easy|medium|hard"}, ...]
}`, co2KgPerKWhSaved, electricityUSDKWh, maxRecommendations)

	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		data = []byte("[]")
	}
	userPrompt := "Energy consumption data:\n\n" + string(data)
	return systemPrompt, userPrompt
}

// rawAnalysisResponse mirrors the response schema with pointer fields so that
// absent values can be told apart from zeros and defaulted explicitly.
type rawAnalysisResponse struct {
	OptimizedData []struct {
		Timestamp      string   `json:"timestamp"`
		OriginalUsage  *float64 `json:"original_usage"`
		OptimizedUsage *float64 `json:"optimized_usage"`
	} `json:"optimized_data"`
	TotalUsageBefore      *float64 `json:"total_usage_before"`
	TotalUsageAfter       *float64 `json:"total_usage_after"`
	EnergySavedKWh        *float64 `json:"energy_saved_kwh"`
	EnergySavedPercentage *float64 `json:"energy_saved_percentage"`
	CO2ReducedKg          *float64 `json:"co2_reduced_kg"`
	CostSavedUSD          *float64 `json:"cost_saved_usd"`
	GreenScore            *float64 `json:"green_score"`
	Recommendations       []struct {
		Title            string `json:"title"`
		Description      string `json:"description"`
		SavingsPotential string `json:"savings_potential"`
		Difficulty       string `json:"difficulty"`
	} `json:"recommendations"`
}

func parseAnalysisResponse(responseText string) (aiAnalysis, error) {
	responseText = stripJSONFences(responseText)

	var raw rawAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return aiAnalysis{}, fmt.Errorf("parsing LLM analysis response: %w (truncated response: %s)",
			err, truncateForLog(responseText, 512))
	}

	analysis := aiAnalysis{
		TotalUsageBefore:      floatOrZero(raw.TotalUsageBefore),
		TotalUsageAfter:       floatOrZero(raw.TotalUsageAfter),
		EnergySavedKWh:        floatOrZero(raw.EnergySavedKWh),
		EnergySavedPercentage: floatOrZero(raw.EnergySavedPercentage),
		CO2ReducedKg:          floatOrZero(raw.CO2ReducedKg),
		CostSavedUSD:          floatOrZero(raw.CostSavedUSD),
		GreenScore:            clampGreenScore(floatOrZero(raw.GreenScore)),
	}

	for _, p := range raw.OptimizedData {
		analysis.OptimizedData = append(analysis.OptimizedData, optimizedPoint{
			Timestamp:      strings.TrimSpace(p.Timestamp),
			OriginalUsage:  floatOrZero(p.OriginalUsage),
			OptimizedUsage: floatOrZero(p.OptimizedUsage),
		})
	}

	for _, r := range raw.Recommendations {
		if len(analysis.Recommendations) >= maxRecommendations {
			break
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		analysis.Recommendations = append(analysis.Recommendations, Recommendation{
			Title:            title,
			Description:      strings.TrimSpace(r.Description),
			SavingsPotential: strings.TrimSpace(r.SavingsPotential),
			Difficulty:       normalizeDifficulty(r.Difficulty),
		})
	}

	return analysis, nil
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func stripJSONFences(responseText string) string {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// invokeLLM dispatches to the configured provider.
func invokeLLM(ctx context.Context, cfg Config, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	switch cfg.LLMProvider {
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		return callOpenAI(ctx, cfg.OpenAIAPIKey, model, systemPrompt, userPrompt)
	default:
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		return callAnthropic(ctx, cfg.AnthropicAPIKey, model, systemPrompt, userPrompt)
	}
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d",
				len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", LLMUsage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}

	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	if len(openAIResp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d",
		len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}
