package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/source"
)

type inspectFlags struct {
	url       string
	content   string
	name      string
	nameEN    string
	sourceTag string
}

// newInspectCmd creates the 'inspect' subcommand. It evaluates one page and
// prints the selection without touching the catalog.
func newInspectCmd() *cobra.Command {
	var flags inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Score one page and print the selection",
		Example: `  enricher inspect --url https://www.montes.cl/ --content logo --name Montes
  enricher inspect --url "https://search.shopping.naver.com/search/all?query=몬테스 알파" --content price --source-tag marketplace`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "", "page to evaluate")
	cmd.Flags().StringVar(&flags.content, "content", "", "content type: label, logo, winery_photo or price")
	cmd.Flags().StringVar(&flags.name, "name", "", "subject name used for name matching")
	cmd.Flags().StringVar(&flags.nameEN, "name-en", "", "secondary (English) subject name")
	cmd.Flags().StringVar(&flags.sourceTag, "source-tag", string(enrich.SourceOfficial), "trust tag of the page: official, marketplace or search")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func runInspect(cmd *cobra.Command, flags inspectFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ct, ok := enrich.ParseContentType(flags.content)
	if !ok {
		return fmt.Errorf("unknown content type %q", flags.content)
	}
	tag := enrich.SourceTag(flags.sourceTag)
	if tag.TrustWeight() == 0 {
		return fmt.Errorf("unknown source tag %q", flags.sourceTag)
	}

	subject := enrich.Subject{
		ID:   "inspect",
		Kind: ct.Kind(),
		Name: enrich.LocalizedName{Primary: flags.name, Secondary: flags.nameEN},
	}
	target := source.Target{URL: flags.url, Origin: enrich.Origin{Name: "inspect", Tag: tag}}

	result, err := appInstance.Pipeline().Inspect(cmd.Context(), subject, ct, target)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", flags.url, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
