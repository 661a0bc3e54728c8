package dsl

import "encoding/json"

// Script is a server-side scoring script with its parameters.
type Script struct {
	Source string
	Params map[string]any
}

// ScoreFunction contributes Weight when Filter matches. Random and Script
// functions ignore Filter.
type ScoreFunction struct {
	Weight float64
	Filter *Clause
	Random bool
	Script *Script
}

func WeightWhen(weight float64, filter Clause) ScoreFunction {
	return ScoreFunction{Weight: weight, Filter: &filter}
}

// RandomTieBreak adds a pseudo-random term in [0, 1).
func RandomTieBreak() ScoreFunction {
	return ScoreFunction{Weight: 1, Random: true}
}

func (f ScoreFunction) Source() map[string]any {
	out := map[string]any{}
	switch {
	case f.Random:
		out["random_score"] = map[string]any{}
	case f.Script != nil:
		out["script_score"] = map[string]any{"script": map[string]any{
			"lang":   "painless",
			"source": f.Script.Source,
			"params": f.Script.Params,
		}}
	case f.Filter != nil:
		out["filter"] = f.Filter.Source()
	}
	if f.Weight != 0 {
		out["weight"] = f.Weight
	}
	return out
}

// Query is the complete filter + ranking document for one keyword and variant.
type Query struct {
	Filters   []Clause
	Functions []ScoreFunction
	Fields    []string
	Size      int
}

// Source renders a function_score query whose summed function weights
// replace the text relevance score.
func (q Query) Source() map[string]any {
	functions := make([]map[string]any, 0, len(q.Functions))
	for _, f := range q.Functions {
		functions = append(functions, f.Source())
	}
	return map[string]any{
		"size": q.Size,
		"query": map[string]any{
			"function_score": map[string]any{
				"boost_mode": "replace",
				"score_mode": "sum",
				"query": map[string]any{
					"bool": map[string]any{"filter": sources(q.Filters)},
				},
				"functions": functions,
			},
		},
		"_source": q.Fields,
	}
}

func (q Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Source())
}
