package featureplatform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const entityField = "searchkeyword_view_entity"

type featureResponse struct {
	Entity map[string]map[string]json.RawMessage `json:"searchkeyword_view_entity"`
}

// featureGroup extracts one feature group from a response body. A missing
// group yields nil without error.
func featureGroup(body []byte, group string) (map[string]json.RawMessage, error) {
	var resp featureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", entityField, err)
	}
	return resp.Entity[group], nil
}

// unquote returns the JSON document a field carries, whether it is inline or
// serialised into a string.
func unquote(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return []byte(s), nil
}

type boostEntry struct {
	Name    string          `json:"hoian_category_name"`
	IsBoost json.RawMessage `json:"is_boost"`
}

// parseBoostCategories returns the names flagged with is_boost == 1.
func parseBoostCategories(raw json.RawMessage) ([]string, error) {
	body, err := unquote(raw)
	if err != nil || body == nil {
		return nil, err
	}
	var entries []boostEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode category_weights: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Name == "" || !isBoost(e.IsBoost) {
			continue
		}
		names = append(names, e.Name)
	}
	return names, nil
}

func isBoost(raw json.RawMessage) bool {
	switch strings.Trim(strings.TrimSpace(string(raw)), `"`) {
	case "1", "1.0", "true":
		return true
	default:
		return false
	}
}

// parseDepthWeights reads a category_N_weights field shaped as {id: score}
// or as [{category_id|id, score|weight}]. Entries whose id or score cannot
// be read are returned in dropped.
func parseDepthWeights(raw json.RawMessage) (weights map[int64]int, dropped []string, err error) {
	body, err := unquote(raw)
	if err != nil || body == nil {
		return nil, nil, err
	}

	weights = map[int64]int{}
	switch body[0] {
	case '{':
		var table map[string]json.RawMessage
		if err := json.Unmarshal(body, &table); err != nil {
			return nil, nil, fmt.Errorf("decode weight table: %w", err)
		}
		for key, value := range table {
			if !addWeight(weights, key, value) {
				dropped = append(dropped, key)
			}
		}
	case '[':
		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, nil, fmt.Errorf("decode weight list: %w", err)
		}
		for _, e := range entries {
			id := firstPresent(e, "category_id", "id")
			key := strings.Trim(string(id), `"`)
			if id == nil || !addWeight(weights, key, firstPresent(e, "score", "weight")) {
				dropped = append(dropped, key)
			}
		}
	default:
		return nil, nil, fmt.Errorf("unexpected weight payload %.40q", body)
	}
	return weights, dropped, nil
}

func addWeight(weights map[int64]int, key string, value json.RawMessage) bool {
	w, err := parseWeight(key, value)
	if err != nil {
		return false
	}
	weights[w.CategoryID] = w.Score
	return true
}

// parseWeight reads one id/score pair. Scores are kept as sent; tier
// bucketing ignores values outside 1..3.
func parseWeight(key string, value json.RawMessage) (domain.CategoryWeight, error) {
	id, err := domain.ParseCategoryID(key)
	if err != nil {
		return domain.CategoryWeight{}, err
	}
	text := strings.Trim(strings.TrimSpace(string(value)), `"`)
	score, err := strconv.ParseFloat(text, 64)
	if err != nil || score != float64(int(score)) {
		return domain.CategoryWeight{}, fmt.Errorf("category %d: score %q is not an integer", id, text)
	}
	return domain.CategoryWeight{CategoryID: id, Score: int(score)}, nil
}

func firstPresent(entry map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := entry[k]; ok && string(v) != "null" {
			return v
		}
	}
	return nil
}
