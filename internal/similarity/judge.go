package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eventarb/crossvenue/internal/verror"
)

// Judge answers the single yes/no question SimilarityManager's
// _check_GPT_similarity asked: are these two markets' name+rules IDENTICAL.
// A Judge must fail closed — any error is the caller's cue to treat the
// pair as not identical, never to propagate.
type Judge interface {
	IsIdentical(ctx context.Context, name1, rules1, name2, rules2 string) (bool, error)
}

const judgeSystemPrompt = "You are a helpful assistant whose job is to determine whether two event contract markets are IDENTICAL to each other. " +
	"We define two event contracts to be IDENTICAL if and only if they track the same event outcome and resolve under the same rules. " +
	"You may only establish two markets to be IDENTICAL if and only if you can determine with absolute certainty that the two markets meet the necessary criteria we outlined for IDENTICAL markets. " +
	"If you deem the two markets to be IDENTICAL, you must return true and otherwise return false if there is even the slightest difference."

// verdictSchema mirrors MarketPrediction's single `final_answer: bool`
// field, enforced via OpenAI's structured-output response_format the same
// way instructor.patch(OpenAI()) enforced it in the original.
var verdictSchema = map[string]interface{}{
	"name":   "market_prediction",
	"strict": true,
	"schema": map[string]interface{}{
		"type":                 "object",
		"properties":           map[string]interface{}{"final_answer": map[string]interface{}{"type": "boolean"}},
		"required":             []string{"final_answer"},
		"additionalProperties": false,
	},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type verdict struct {
	FinalAnswer bool `json:"final_answer"`
}

// OpenAIJudge calls a chat-completions endpoint with a JSON-schema response
// format, the Go translation of instructor's structured-output pattern used
// by MarketSimilarityService._check_gpt_similarity.
type OpenAIJudge struct {
	BaseURL    string
	APIKey     string
	Model      string
	httpClient *http.Client
}

func NewOpenAIJudge(baseURL, apiKey, model string) *OpenAIJudge {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIJudge{
		BaseURL: baseURL, APIKey: apiKey, Model: model,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (j *OpenAIJudge) IsIdentical(ctx context.Context, name1, rules1, name2, rules2 string) (bool, error) {
	reqBody := chatRequest{
		Model: j.Model,
		Messages: []chatMessage{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(
				"Are these two markets IDENTICAL? Market 1: %s, Rules: %s. Market 2: %s, Rules: %s.",
				name1, rules1, name2, rules2)},
		},
		ResponseFormat: map[string]interface{}{"type": "json_schema", "json_schema": verdictSchema},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+j.APIKey)

	resp, err := j.httpClient.Do(httpReq)
	if err != nil {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", fmt.Errorf("openai: status %d", resp.StatusCode))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", err)
	}
	if len(chatResp.Choices) == 0 {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", fmt.Errorf("openai: no choices returned"))
	}

	var v verdict
	if err := json.Unmarshal([]byte(chatResp.Choices[0].Message.Content), &v); err != nil {
		return false, verror.New(verror.JudgeFailure, "IsIdentical", err)
	}
	return v.FinalAnswer, nil
}

// StubJudge returns a fixed verdict, for tests and local dry runs in place
// of a live OpenAI call.
type StubJudge struct {
	Verdict bool
	Err     error
}

func (j StubJudge) IsIdentical(ctx context.Context, name1, rules1, name2, rules2 string) (bool, error) {
	return j.Verdict, j.Err
}
