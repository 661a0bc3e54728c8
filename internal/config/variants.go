package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

type variantsFile struct {
	Variants []dsl.Variant `yaml:"variants"`
}

// LoadVariants reads a YAML list of filter/ranking pairs.
func LoadVariants(path string) ([]dsl.Variant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read variants file", err)
	}
	return ParseVariants(data)
}

func ParseVariants(data []byte) ([]dsl.Variant, error) {
	var file variantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "parse variants file", err)
	}
	if len(file.Variants) == 0 {
		return nil, domain.ConfigError("parse variants file", "no variants listed")
	}
	for i, v := range file.Variants {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("variant %d: %w", i+1, err)
		}
	}
	return file.Variants, nil
}

// ResolveVariants merges "filter:ranking" specs with the variants file,
// dropping repeats while keeping first-seen order.
func ResolveVariants(specs []string, variantsFile string) ([]dsl.Variant, error) {
	var out []dsl.Variant
	for _, spec := range specs {
		v, err := dsl.ParseVariantSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if variantsFile != "" {
		fromFile, err := LoadVariants(variantsFile)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	if len(out) == 0 {
		return nil, domain.ConfigError("resolve variants", "at least one variant is required")
	}

	seen := make(map[dsl.Variant]struct{}, len(out))
	unique := out[:0]
	for _, v := range out {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return unique, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
