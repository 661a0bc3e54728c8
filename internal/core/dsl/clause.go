package dsl

// ClauseKind names the query DSL node a Clause renders to.
type ClauseKind string

const (
	KindExists ClauseKind = "exists"
	KindTerm   ClauseKind = "term"
	KindTerms  ClauseKind = "terms"
	KindMatch  ClauseKind = "match"
	KindBool   ClauseKind = "bool"
)

// Clause is an immutable filter predicate. Only the fields relevant to Kind
// are set.
type Clause struct {
	Kind     ClauseKind
	Field    string
	Value    any
	Values   []any
	Query    string
	Operator string
	Should   []Clause
	MustNot  []Clause
}

func Exists(field string) Clause {
	return Clause{Kind: KindExists, Field: field}
}

func Term(field string, value any) Clause {
	return Clause{Kind: KindTerm, Field: field, Value: value}
}

func Terms[T any](field string, values []T) Clause {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return Clause{Kind: KindTerms, Field: field, Values: out}
}

// MatchAll matches text requiring every analysed term.
func MatchAll(field, text string) Clause {
	return Clause{Kind: KindMatch, Field: field, Query: text, Operator: "and"}
}

func AnyOf(clauses ...Clause) Clause {
	return Clause{Kind: KindBool, Should: clauses}
}

func Not(clauses ...Clause) Clause {
	return Clause{Kind: KindBool, MustNot: clauses}
}

// InOrMissing keeps documents whose field is one of values or has no value.
func InOrMissing[T any](field string, values []T) Clause {
	return AnyOf(Terms(field, values), Not(Exists(field)))
}

// Source renders the clause as a query DSL object.
func (c Clause) Source() map[string]any {
	switch c.Kind {
	case KindExists:
		return map[string]any{"exists": map[string]any{"field": c.Field}}
	case KindTerm:
		return map[string]any{"term": map[string]any{c.Field: map[string]any{"value": c.Value}}}
	case KindTerms:
		values := c.Values
		if values == nil {
			values = []any{}
		}
		return map[string]any{"terms": map[string]any{c.Field: values}}
	case KindMatch:
		return map[string]any{"match": map[string]any{c.Field: map[string]any{
			"query":    c.Query,
			"operator": c.Operator,
		}}}
	case KindBool:
		body := map[string]any{}
		if len(c.Should) > 0 {
			body["should"] = sources(c.Should)
		}
		if len(c.MustNot) > 0 {
			body["must_not"] = sources(c.MustNot)
		}
		return map[string]any{"bool": body}
	default:
		return map[string]any{}
	}
}

func sources(clauses []Clause) []map[string]any {
	out := make([]map[string]any, 0, len(clauses))
	for _, c := range clauses {
		out = append(out, c.Source())
	}
	return out
}
