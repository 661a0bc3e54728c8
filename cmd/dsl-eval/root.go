package main

import (
	"github.com/spf13/cobra"

	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "dsl-eval",
		Short:         "Evaluate search DSL variants with an LLM relevance judge",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(cfg),
		newQueryCmd(cfg),
		newMCPCmd(cfg),
		newHistoryCmd(cfg),
		newSubmitCmd(cfg),
	)
	return root
}

// variantFlags are shared by every command that selects variants.
type variantFlags struct {
	filter       string
	ranking      string
	variants     []string
	variantsFile string
}

func (f *variantFlags) register(cmd *cobra.Command, cfg config.Config) {
	cmd.Flags().StringVar(&f.filter, "dsl-filter", "", "filter mode (used with --dsl-ranking)")
	cmd.Flags().StringVar(&f.ranking, "dsl-ranking", "", "ranking mode (used with --dsl-filter)")
	cmd.Flags().StringArrayVar(&f.variants, "variant", nil, "filter:ranking pair, repeatable")
	cmd.Flags().StringVar(&f.variantsFile, "variants-file", cfg.VariantsFile, "YAML file listing variants")
}

// specs returns the selected variants as filter:ranking strings.
func (f *variantFlags) specs() ([]string, error) {
	specs := append([]string(nil), f.variants...)
	switch {
	case f.filter != "" && f.ranking != "":
		specs = append([]string{f.filter + ":" + f.ranking}, specs...)
	case f.filter != "" || f.ranking != "":
		return nil, domain.ConfigError("parse flags", "--dsl-filter and --dsl-ranking must be given together")
	}
	return specs, nil
}

func (f *variantFlags) resolve() ([]dsl.Variant, error) {
	specs, err := f.specs()
	if err != nil {
		return nil, err
	}
	return config.ResolveVariants(specs, f.variantsFile)
}
