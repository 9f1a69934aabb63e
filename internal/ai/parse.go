package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"treasury-reconciler/internal/models"
)

type rawPair struct {
	LedgerTransactionID string          `json:"crimsonTransactionId"`
	BankTransactionID   json.RawMessage `json:"bankTransactionId"`
	ConfidenceScore     float64         `json:"confidenceScore"`
	Reasoning           string          `json:"reasoning"`
}

// ParsePairs decodes the collaborator's JSON array of matched pairs.
//
// An empty or non-array body is an error, never an empty result. A bare
// string in bankTransactionId is accepted as a one-element list. Pairs are
// returned as sent; confidence filtering happens in the matcher.
func ParsePairs(text string) ([]models.MatchedPair, error) {
	body := stripFences(strings.TrimSpace(text))
	if body == "" {
		return nil, fmt.Errorf("empty response")
	}
	if !strings.HasPrefix(body, "[") || !strings.HasSuffix(body, "]") {
		return nil, fmt.Errorf("response is not a JSON array: %.80q", body)
	}

	var raw []rawPair
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("decode matched pairs: %w", err)
	}

	pairs := make([]models.MatchedPair, 0, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.LedgerTransactionID) == "" {
			return nil, fmt.Errorf("pair %d has no crimsonTransactionId", i)
		}
		if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
			return nil, fmt.Errorf("pair %d has confidence %v outside [0,1]", i, r.ConfidenceScore)
		}
		ids, err := bankIDs(r.BankTransactionID)
		if err != nil {
			return nil, fmt.Errorf("pair %d: %w", i, err)
		}
		pairs = append(pairs, models.MatchedPair{
			LedgerTransactionID: r.LedgerTransactionID,
			BankTransactionIDs:  ids,
			ConfidenceScore:     r.ConfidenceScore,
			Reasoning:           r.Reasoning,
		})
	}
	return pairs, nil
}

func bankIDs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("bankTransactionId must be a string array")
	}
	if single == "" {
		return nil, nil
	}
	return []string{single}, nil
}

// stripFences removes a surrounding ```json ... ``` block if present
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
