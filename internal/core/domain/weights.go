package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Depth is a taxonomy level; 1 is the coarsest.
type Depth int

const (
	Depth1 Depth = 1
	Depth2 Depth = 2
	Depth3 Depth = 3
)

var Depths = []Depth{Depth1, Depth2, Depth3}

func (d Depth) Valid() bool {
	return d >= Depth1 && d <= Depth3
}

// Tier is a confidence bucket derived from a category weight score.
type Tier int

const (
	TierRelated        Tier = 1
	TierRelevant       Tier = 2
	TierHighlyRelevant Tier = 3
)

var Tiers = []Tier{TierHighlyRelevant, TierRelevant, TierRelated}

func (t Tier) Valid() bool {
	return t >= TierRelated && t <= TierHighlyRelevant
}

func (t Tier) String() string {
	switch t {
	case TierHighlyRelevant:
		return "highly_relevant"
	case TierRelevant:
		return "relevant"
	case TierRelated:
		return "related"
	default:
		return "unknown"
	}
}

// CategoryWeight is one category signal from the weight provider.
type CategoryWeight struct {
	CategoryID int64 `json:"category_id"`
	Score      int   `json:"score"`
}

// WeightSet holds the category signals fetched for one keyword.
type WeightSet struct {
	ByDepth         map[Depth]map[int64]int `json:"by_depth,omitempty"`
	BoostCategories []string                `json:"boost_categories,omitempty"`
}

// At returns the weights for a depth, nil when absent.
func (w WeightSet) At(d Depth) map[int64]int {
	if w.ByDepth == nil {
		return nil
	}
	return w.ByDepth[d]
}

func (w WeightSet) HasDepth(d Depth) bool {
	return len(w.At(d)) > 0
}

func (w WeightSet) Empty() bool {
	if len(w.BoostCategories) > 0 {
		return false
	}
	for _, d := range Depths {
		if w.HasDepth(d) {
			return false
		}
	}
	return true
}

// Set records a weight, replacing any previous score for the id.
func (w *WeightSet) Set(d Depth, categoryID int64, score int) {
	if w.ByDepth == nil {
		w.ByDepth = make(map[Depth]map[int64]int, len(Depths))
	}
	if w.ByDepth[d] == nil {
		w.ByDepth[d] = make(map[int64]int)
	}
	w.ByDepth[d][categoryID] = score
}

// Merge copies other into w. Depth maps in other win over existing ones.
func (w *WeightSet) Merge(other WeightSet) {
	for d, weights := range other.ByDepth {
		for id, score := range weights {
			w.Set(d, id, score)
		}
	}
	if len(other.BoostCategories) > 0 {
		w.BoostCategories = append([]string(nil), other.BoostCategories...)
	}
}

// CategoryIDs returns the weighted ids at a depth in ascending order.
func (w WeightSet) CategoryIDs(d Depth) []int64 {
	weights := w.At(d)
	ids := make([]int64, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Buckets partitions the weighted ids at a depth by tier. Scores outside
// {1,2,3} are left out. Ids inside each tier are sorted ascending.
func (w WeightSet) Buckets(d Depth) map[Tier][]int64 {
	out := make(map[Tier][]int64, len(Tiers))
	for _, id := range w.CategoryIDs(d) {
		tier := Tier(w.At(d)[id])
		if !tier.Valid() {
			continue
		}
		out[tier] = append(out[tier], id)
	}
	return out
}

// ParseCategoryID converts an external category id to the canonical int64.
// Integral floats such as "101.0" are accepted.
func ParseCategoryID(raw string) (int64, error) {
	text := strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, WrapError(ErrInvalidInput, "parse category id", fmt.Errorf("%q is not an integer", raw))
	}
	return int64(f), nil
}
