package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

// Index field names.
const (
	FieldCatalogSets   = "catalog_product_set_ids"
	FieldIsLive        = "is_live"
	FieldAvailability  = "availability"
	FieldTitle         = "serving_title"
	FieldFastText      = "fast_text_category_name"
	FieldCategoryName0 = "category_name_0"

	availabilityInStock = "IN_STOCK"
	fastTextBoostWeight = 10
	DefaultSize         = 100
)

// CategoryField is the llm category id field for a depth.
func CategoryField(d domain.Depth) string {
	return fmt.Sprintf("llm_category_depth_%d_id", d)
}

// SourceFields are the document fields requested for every hit.
var SourceFields = []string{
	"original_id",
	"product_id",
	"catalog_id",
	"title",
	FieldCategoryName0,
	CategoryField(domain.Depth1),
	CategoryField(domain.Depth2),
	CategoryField(domain.Depth3),
}

// TierWeights is the frozen weighting table shared by the tiered and the
// scripted ranking modes. Shallower depths and stronger tiers weigh more.
var TierWeights = map[domain.Depth]map[domain.Tier]float64{
	domain.Depth1: {domain.TierHighlyRelevant: 90, domain.TierRelevant: 60, domain.TierRelated: 30},
	domain.Depth2: {domain.TierHighlyRelevant: 60, domain.TierRelevant: 40, domain.TierRelated: 20},
	domain.Depth3: {domain.TierHighlyRelevant: 30, domain.TierRelevant: 20, domain.TierRelated: 10},
}

type Options struct {
	Size int
}

type buildInput struct {
	keyword     string
	weights     domain.WeightSet
	filterDepth domain.Depth
}

// Build assembles the query for one keyword. It fails only for variants
// outside the known enumeration.
func Build(keyword string, v Variant, weights domain.WeightSet, opts Options) (Query, error) {
	filter, ok := filterModes[v.Filter]
	if !ok {
		return Query{}, domain.ConfigError("build query", "unknown filter mode %q", v.Filter)
	}
	ranking, ok := rankingModes[v.Ranking]
	if !ok {
		return Query{}, domain.ConfigError("build query", "unknown ranking mode %q", v.Ranking)
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}

	in := buildInput{
		keyword:     keyword,
		weights:     weights,
		filterDepth: v.FilterDepth(),
	}
	functions := ranking.build(in, ranking)
	functions = append(functions, RandomTieBreak())

	return Query{
		Filters:   filter.build(in),
		Functions: functions,
		Fields:    append([]string(nil), SourceFields...),
		Size:      size,
	}, nil
}

func baseFilters(in buildInput) []Clause {
	return []Clause{
		Exists(FieldCatalogSets),
		Term(FieldIsLive, true),
		Term(FieldAvailability, availabilityInStock),
		MatchAll(FieldTitle, in.keyword),
	}
}

func fastTextFilters(in buildInput) []Clause {
	filters := baseFilters(in)
	if len(in.weights.BoostCategories) == 0 {
		return filters
	}
	return append(filters, InOrMissing(FieldFastText, in.weights.BoostCategories))
}

func llmDepthFilters(in buildInput) []Clause {
	filters := baseFilters(in)
	if !in.weights.HasDepth(in.filterDepth) {
		return filters
	}
	return append(filters, InOrMissing(CategoryField(in.filterDepth), in.weights.CategoryIDs(in.filterDepth)))
}

func randomRanking(buildInput, rankingSpec) []ScoreFunction {
	return nil
}

func fastTextRanking(in buildInput, _ rankingSpec) []ScoreFunction {
	if len(in.weights.BoostCategories) == 0 {
		return nil
	}
	return []ScoreFunction{WeightWhen(fastTextBoostWeight, Terms(FieldFastText, in.weights.BoostCategories))}
}

// scoredTiers returns the tiers a ranking spec rewards at depth d. The
// related tier is dropped on the depth the filter already constrains.
func scoredTiers(in buildInput, spec rankingSpec, d domain.Depth) []domain.Tier {
	out := make([]domain.Tier, 0, len(spec.tiers))
	for _, tier := range spec.tiers {
		if tier == domain.TierRelated && d == in.filterDepth {
			continue
		}
		out = append(out, tier)
	}
	return out
}

func tieredRanking(in buildInput, spec rankingSpec) []ScoreFunction {
	var functions []ScoreFunction
	for _, d := range spec.depths {
		buckets := in.weights.Buckets(d)
		for _, tier := range scoredTiers(in, spec, d) {
			ids := buckets[tier]
			if len(ids) == 0 {
				continue
			}
			functions = append(functions, WeightWhen(TierWeights[d][tier], Terms(CategoryField(d), ids)))
		}
	}
	return functions
}

func scriptRanking(in buildInput, spec rankingSpec) []ScoreFunction {
	params := map[string]any{}
	var body strings.Builder
	body.WriteString("double s = 0;\n")
	for _, d := range spec.depths {
		table := scriptTable(in, spec, d)
		if len(table) == 0 {
			continue
		}
		param := fmt.Sprintf("w%d", d)
		params[param] = table
		fmt.Fprintf(&body,
			"if (doc.containsKey('%[1]s') && !doc['%[1]s'].empty) { String k = String.valueOf(doc['%[1]s'].value); if (params.%[2]s.containsKey(k)) { s += params.%[2]s[k]; } }\n",
			CategoryField(d), param,
		)
	}
	if len(params) == 0 {
		return nil
	}
	body.WriteString("return s;")
	return []ScoreFunction{{Script: &Script{Source: body.String(), Params: params}}}
}

// scriptTable maps category id to the weight the tiered twin would award.
func scriptTable(in buildInput, spec rankingSpec, d domain.Depth) map[string]float64 {
	buckets := in.weights.Buckets(d)
	table := map[string]float64{}
	for _, tier := range scoredTiers(in, spec, d) {
		for _, id := range buckets[tier] {
			table[strconv.FormatInt(id, 10)] = TierWeights[d][tier]
		}
	}
	return table
}
