package dsl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

type FilterMode string

const (
	FilterNone      FilterMode = "none"
	FilterFastText  FilterMode = "fasttext"
	FilterLLMDepth1 FilterMode = "llm_depth1"
	FilterLLMDepth2 FilterMode = "llm_depth2"
	FilterLLMDepth3 FilterMode = "llm_depth3"
)

type RankingMode string

const (
	RankingRandom               RankingMode = "random"
	RankingFastText             RankingMode = "fasttext"
	RankingLLMDepth123Score123  RankingMode = "llm_depth123_score123"
	RankingLLMDepth123Score12   RankingMode = "llm_depth123_score12"
	RankingLLMDepth23Score123   RankingMode = "llm_depth23_score123"
	RankingLLMDepth23Score12    RankingMode = "llm_depth23_score12"
	RankingLLMDepth3Score123    RankingMode = "llm_depth3_score123"
	RankingLLMDepth3Score12     RankingMode = "llm_depth3_score12"
	RankingLLMDepth123Score123S RankingMode = "llm_depth123_score123_script"
	RankingLLMDepth123Score12S  RankingMode = "llm_depth123_score12_script"
	RankingLLMDepth23Score123S  RankingMode = "llm_depth23_score123_script"
	RankingLLMDepth23Score12S   RankingMode = "llm_depth23_score12_script"
	RankingLLMDepth3Score123S   RankingMode = "llm_depth3_score123_script"
	RankingLLMDepth3Score12S    RankingMode = "llm_depth3_score12_script"
)

type filterSpec struct {
	// depth is the llm category depth the filter constrains, 0 for none.
	depth      domain.Depth
	needsBoost bool
	build      func(in buildInput) []Clause
}

type rankingSpec struct {
	depths     []domain.Depth
	tiers      []domain.Tier
	needsBoost bool
	build      func(in buildInput, spec rankingSpec) []ScoreFunction
}

var (
	depths123 = []domain.Depth{domain.Depth1, domain.Depth2, domain.Depth3}
	depths23  = []domain.Depth{domain.Depth2, domain.Depth3}
	depths3   = []domain.Depth{domain.Depth3}

	score123 = []domain.Tier{domain.TierHighlyRelevant, domain.TierRelevant, domain.TierRelated}
	score12  = []domain.Tier{domain.TierHighlyRelevant, domain.TierRelevant}
)

var filterModes = map[FilterMode]filterSpec{
	FilterNone:      {build: baseFilters},
	FilterFastText:  {needsBoost: true, build: fastTextFilters},
	FilterLLMDepth1: {depth: domain.Depth1, build: llmDepthFilters},
	FilterLLMDepth2: {depth: domain.Depth2, build: llmDepthFilters},
	FilterLLMDepth3: {depth: domain.Depth3, build: llmDepthFilters},
}

var rankingModes = map[RankingMode]rankingSpec{
	RankingRandom:   {build: randomRanking},
	RankingFastText: {needsBoost: true, build: fastTextRanking},

	RankingLLMDepth123Score123: {depths: depths123, tiers: score123, build: tieredRanking},
	RankingLLMDepth123Score12:  {depths: depths123, tiers: score12, build: tieredRanking},
	RankingLLMDepth23Score123:  {depths: depths23, tiers: score123, build: tieredRanking},
	RankingLLMDepth23Score12:   {depths: depths23, tiers: score12, build: tieredRanking},
	RankingLLMDepth3Score123:   {depths: depths3, tiers: score123, build: tieredRanking},
	RankingLLMDepth3Score12:    {depths: depths3, tiers: score12, build: tieredRanking},

	RankingLLMDepth123Score123S: {depths: depths123, tiers: score123, build: scriptRanking},
	RankingLLMDepth123Score12S:  {depths: depths123, tiers: score12, build: scriptRanking},
	RankingLLMDepth23Score123S:  {depths: depths23, tiers: score123, build: scriptRanking},
	RankingLLMDepth23Score12S:   {depths: depths23, tiers: score12, build: scriptRanking},
	RankingLLMDepth3Score123S:   {depths: depths3, tiers: score123, build: scriptRanking},
	RankingLLMDepth3Score12S:    {depths: depths3, tiers: score12, build: scriptRanking},
}

func ParseFilterMode(name string) (FilterMode, error) {
	mode := FilterMode(strings.TrimSpace(name))
	if _, ok := filterModes[mode]; !ok {
		return "", domain.ConfigError("parse filter mode", "unknown filter mode %q (known: %s)", name, joinModes(FilterModes()))
	}
	return mode, nil
}

func ParseRankingMode(name string) (RankingMode, error) {
	mode := RankingMode(strings.TrimSpace(name))
	if _, ok := rankingModes[mode]; !ok {
		return "", domain.ConfigError("parse ranking mode", "unknown ranking mode %q (known: %s)", name, joinModes(RankingModes()))
	}
	return mode, nil
}

// FilterModes lists the supported filter modes in name order.
func FilterModes() []FilterMode {
	out := make([]FilterMode, 0, len(filterModes))
	for mode := range filterModes {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RankingModes lists the supported ranking modes in name order.
func RankingModes() []RankingMode {
	out := make([]RankingMode, 0, len(rankingModes))
	for mode := range rankingModes {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinModes[T ~string](modes []T) string {
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

// Variant is one filter × ranking combination under evaluation.
type Variant struct {
	Filter  FilterMode  `json:"filter" yaml:"filter"`
	Ranking RankingMode `json:"ranking" yaml:"ranking"`
}

func ParseVariant(filter, ranking string) (Variant, error) {
	f, err := ParseFilterMode(filter)
	if err != nil {
		return Variant{}, err
	}
	r, err := ParseRankingMode(ranking)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Filter: f, Ranking: r}, nil
}

// ParseVariantSpec parses "filter:ranking".
func ParseVariantSpec(spec string) (Variant, error) {
	filter, ranking, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok {
		return Variant{}, domain.ConfigError("parse variant", "variant %q must look like filter:ranking", spec)
	}
	return ParseVariant(filter, ranking)
}

func (v Variant) Validate() error {
	_, err := ParseVariant(string(v.Filter), string(v.Ranking))
	return err
}

// Name is a stable identifier usable as a directory name.
func (v Variant) Name() string {
	return fmt.Sprintf("%s_%s", v.Filter, v.Ranking)
}

func (v Variant) String() string {
	return fmt.Sprintf("%s:%s", v.Filter, v.Ranking)
}

// NeedsBoostCategories reports whether the fasttext boost list is used.
func (v Variant) NeedsBoostCategories() bool {
	return filterModes[v.Filter].needsBoost || rankingModes[v.Ranking].needsBoost
}

// NeedsDepthWeights reports whether llm category weights are used.
func (v Variant) NeedsDepthWeights() bool {
	return filterModes[v.Filter].depth != 0 || len(rankingModes[v.Ranking].depths) > 0
}

// FilterDepth is the llm depth constrained by the filter mode, 0 if none.
func (v Variant) FilterDepth() domain.Depth {
	return filterModes[v.Filter].depth
}
