// Package ai implements the matching collaborator on top of the Gemini
// generateContent REST API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"

	"treasury-reconciler/internal/models"
	"treasury-reconciler/pkg/errors"
	"treasury-reconciler/pkg/logger"
)

// DefaultModel is the Gemini model used when none is configured
const DefaultModel = "gemini-2.5-flash"

const collaboratorName = "gemini matching service"

// Config holds the collaborator settings
type Config struct {
	APIKey  string       `json:"-" mapstructure:"api_key"`
	Model   string       `json:"model" mapstructure:"model"`
	BaseURL string       `json:"base_url" mapstructure:"base_url"`
	Retry   RetryOptions `json:"retry" mapstructure:"retry"`
}

// Generator produces the raw text for a prompt. The Gemini client is one
// implementation; tests substitute their own.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiSuggester asks Gemini for ledger/bank pairs
type GeminiSuggester struct {
	generator Generator
	retry     RetryOptions
	logger    logger.Logger
}

// NewGeminiSuggester creates a suggester backed by the Gemini API
func NewGeminiSuggester(ctx context.Context, config Config, log logger.Logger) (*GeminiSuggester, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.ConfigurationError("ai.api_key", "", nil)
	}
	return NewSuggester(newGeminiGenerator(config), config.Retry, log), nil
}

// NewSuggester wraps any Generator
func NewSuggester(gen Generator, retry RetryOptions, log logger.Logger) *GeminiSuggester {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &GeminiSuggester{
		generator: gen,
		retry:     retry,
		logger:    log.WithComponent("ai"),
	}
}

// Suggest implements matcher.Suggester
func (s *GeminiSuggester) Suggest(ctx context.Context, ledger []models.LedgerRecord, bank []models.BankRecord) ([]models.MatchedPair, error) {
	if len(ledger) == 0 || len(bank) == 0 {
		return []models.MatchedPair{}, nil
	}

	prompt, err := BuildPrompt(ledger, bank)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "failed to build matching prompt")
	}

	var pairs []models.MatchedPair
	err = withRetry(ctx, s.retry, s.logger, func() error {
		text, genErr := s.generator.Generate(ctx, prompt)
		if genErr != nil {
			return genErr
		}
		parsed, parseErr := ParsePairs(text)
		if parseErr != nil {
			return &PermanentError{Err: errors.CollaboratorUnavailable(errors.CodeMalformedResponse, collaboratorName, parseErr)}
		}
		pairs = parsed
		return nil
	})
	if err != nil {
		if errors.IsCollaboratorUnavailable(err) {
			return nil, err
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.CollaboratorUnavailable(errors.CodeTimeout, collaboratorName, err)
		}
		return nil, errors.CollaboratorUnavailable(errors.CodeServiceUnavailable, collaboratorName, err)
	}

	s.logger.WithFields(logger.Fields{
		"ledger_rows": len(ledger),
		"bank_rows":   len(bank),
		"pairs":       len(pairs),
	}).Debug("Received matching suggestions")

	return pairs, nil
}

const promptTemplate = `You are an expert accounting assistant for political campaigns. Your task is to find matching financial records to help with reconciliation.
Analyze the two JSON arrays of transactions: 'crimsonTransactions' (internal ledger) and 'bankTransactions' (bank statement).

Match transactions from 'crimsonTransactions' to one or more transactions in 'bankTransactions'.

Matching criteria:
1. Amount: a positive ledger amount matches a positive bank amount, a negative one a negative one.
2. Date proximity: dates should be the same day or within a 2-3 day window.
3. Aggregations and splits: one ledger transaction may match the sum of several bank transactions, and one bank payout (such as 'WINRED PAYOUT') may cover a gross receipt, a chargeback and fees.
4. Description: keywords help. 'DEPOSIT' links to contributions and receipts, 'NSF' or 'CHGBK' to chargebacks.

Respond with a JSON array only. Each element has the fields crimsonTransactionId (string), bankTransactionId (array of strings, even for a single match), confidenceScore (number from 0 to 1) and reasoning (string).
Only return high-confidence matches (confidenceScore > 0.85). If no matches are found, return an empty array.

Here is the data:
%s
`

type promptData struct {
	Ledger []models.LedgerRecord `json:"crimsonTransactions"`
	Bank   []models.BankRecord   `json:"bankTransactions"`
}

// BuildPrompt renders the matching prompt with both record sets embedded
func BuildPrompt(ledger []models.LedgerRecord, bank []models.BankRecord) (string, error) {
	data, err := json.MarshalIndent(promptData{Ledger: ledger, Bank: bank}, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, string(data)), nil
}

// DefaultBaseURL is the public Gemini REST endpoint
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiGenerator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func newGeminiGenerator(config Config) *geminiGenerator {
	model := strings.TrimPrefix(config.Model, "models/")
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &geminiGenerator{
		apiKey:  config.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate calls models/{model}:generateContent. Non-2xx replies come back
// as *googleapi.Error so the retry policy can look at the status code.
func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := googleapi.CheckResponse(resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PermanentError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", &PermanentError{Err: fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)}
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil {
		return "", &PermanentError{Err: fmt.Errorf("response contained no candidates")}
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
