package trainingplan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

const (
	DefaultAPIURL = "https://api.deepseek.com/v1/chat/completions"

	modelName        = "deepseek-chat"
	modelTemperature = 0.7
	modelMaxTokens   = 2000
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generator asks the DeepSeek chat API for a training plan. Without an API
// key it hands out a fixed sample plan so the feature works in dev setups.
type Generator struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewGenerator(apiURL, apiKey string, httpClient *http.Client) *Generator {
	return &Generator{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (_ PlanData, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.trainingplan.generate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if g.apiKey == "" {
		log.Debug("plan generator: no api key set, returning sample plan")
		return samplePlan(), nil
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: modelTemperature,
		MaxTokens:   modelMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call plan generator api: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Errorf("plan generator: close response body: %s", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plan generator api, unexpected status: %s", resp.Status)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("plan generator api returned no choices")
	}

	return parsePlanContent(chatResp.Choices[0].Message.Content), nil
}

// parsePlanContent takes the model output at face value when it is valid
// JSON, otherwise wraps the raw text with a guessed duration.
func parsePlanContent(content string) PlanData {
	var plan PlanData
	if err := json.Unmarshal([]byte(content), &plan); err == nil {
		return plan
	}

	duration := 12
	if strings.Contains(content, "短期") {
		duration = 4
	}
	return PlanData{
		"title":    "个性化训练计划",
		"content":  content,
		"duration": duration,
	}
}

func samplePlan() PlanData {
	return PlanData{
		"title":    "个性化训练计划",
		"duration": 4,
		"goal":     "提升跑步能力",
		"weekly_schedule": []any{
			map[string]any{
				"week":          1,
				"training_days": []any{"周一", "周三", "周五"},
				"rest_days":     []any{"周二", "周四", "周六", "周日"},
			},
		},
		"daily_plans": []any{
			map[string]any{
				"day":             "周一",
				"warmup":          "5分钟慢跑",
				"main":            "30分钟中等强度跑步",
				"cooldown":        "5分钟拉伸",
				"heart_rate_zone": "60-70%",
				"pace":            "6-7 min/km",
			},
		},
		"suggestions": []any{
			"保持规律训练",
			"注意休息和恢复",
			"逐步增加训练强度",
		},
	}
}
