package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mosaicfin/atrader/internal/domain"
)

var codeFencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// flexNumber accepts both JSON numbers and numeric strings.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		*f = flexNumber(strings.TrimSpace(unquoted))
		return nil
	}
	*f = flexNumber(s)
	return nil
}

// rawDecision tolerates the loose typing LLMs emit.
type rawDecision struct {
	Decision  string     `json:"decision"`
	StockCode string     `json:"stock_code"`
	Quantity  flexNumber `json:"quantity"`
	Price     flexNumber `json:"price"`
	Reason    string     `json:"reason"`
}

// ParseDecisions extracts the decision list from an LLM response. Code
// fences are stripped, a single object counts as a one-element list, and
// malformed entries are skipped while the rest are processed. A response
// with no parseable decision at all is an error.
func ParseDecisions(text string) ([]domain.TradingDecision, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("response contains no decision JSON")
	}

	elements, err := splitElements(payload)
	if err != nil {
		return nil, fmt.Errorf("response is not a decision list: %w", err)
	}

	decisions := make([]domain.TradingDecision, 0, len(elements))
	for _, raw := range elements {
		var r rawDecision
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		if d, ok := convertDecision(r); ok {
			decisions = append(decisions, d)
		}
	}
	if len(decisions) == 0 {
		return nil, fmt.Errorf("response contains no valid decisions")
	}
	return decisions, nil
}

// extractJSON pulls the JSON payload out of a chatty response: fenced
// blocks first, then the outermost array or object.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{") {
		return text
	}

	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			return text[start : end+1]
		}
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return text[start : end+1]
		}
	}
	return ""
}

// splitElements yields the raw elements of the payload: the members of an
// array, or the single object itself.
func splitElements(payload string) ([]json.RawMessage, error) {
	if strings.HasPrefix(payload, "[") {
		var elements []json.RawMessage
		if err := json.Unmarshal([]byte(payload), &elements); err != nil {
			return nil, err
		}
		return elements, nil
	}

	var obj json.RawMessage
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, err
	}
	return []json.RawMessage{obj}, nil
}

func convertDecision(r rawDecision) (domain.TradingDecision, bool) {
	dt := domain.DecisionType(strings.ToLower(strings.TrimSpace(r.Decision)))
	switch dt {
	case domain.DecisionBuy, domain.DecisionSell, domain.DecisionHold, domain.DecisionWait:
	default:
		return domain.TradingDecision{}, false
	}

	d := domain.TradingDecision{
		Decision:  dt,
		StockCode: strings.TrimSpace(r.StockCode),
		Price:     string(r.Price),
		Reason:    strings.TrimSpace(r.Reason),
	}
	if qty, err := strconv.ParseFloat(string(r.Quantity), 64); err == nil {
		d.Quantity = int64(qty)
	}
	return d, true
}
