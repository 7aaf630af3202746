package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/keyword"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Inspect and extract keywords",
}

var (
	keywordsSort   string
	keywordsLimit  int
	keywordsOffset int
)

var keywordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keywords across all conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		page, err := eng.GetAllKeywordsAggregated(context.Background(), keywordsSort, keywordsLimit, keywordsOffset)
		if err != nil {
			return fmt.Errorf("keywords list: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEYWORD\tFREQ\tSCORE\tCONVERSATIONS\tRESTRICTED")
		for _, k := range page.Keywords {
			restricted := ""
			if k.HasRestrictions {
				restricted = "yes"
			}
			fmt.Fprintf(tw, "%s\t%d\t%.3f\t%d\t%s\n", k.Term, k.Frequency, k.Score, k.ConversationCount, restricted)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if page.HasMore {
			fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d; use --offset %d for more)\n",
				len(page.Keywords), page.TotalCount, keywordsOffset+len(page.Keywords))
		}
		return nil
	},
}

var (
	extractMax int
	extractLLM bool
)

var keywordsExtractCmd = &cobra.Command{
	Use:   "extract [file...]",
	Short: "Extract keywords from text files or stdin",
	Long: "Ranks keywords across the given texts, one document per file (stdin when none). " +
		"--llm asks the configured provider instead, falling back to local extraction.",
	RunE: runExtract,
}

func init() {
	keywordsListCmd.Flags().StringVar(&keywordsSort, "sort", "frequency", "Sort by frequency, score, last_seen, first_seen or term")
	keywordsListCmd.Flags().IntVar(&keywordsLimit, "limit", 50, "Page size")
	keywordsListCmd.Flags().IntVar(&keywordsOffset, "offset", 0, "Page offset")

	keywordsExtractCmd.Flags().IntVarP(&extractMax, "max", "n", 10, "Maximum keywords")
	keywordsExtractCmd.Flags().BoolVar(&extractLLM, "llm", false, "Use the configured LLM provider")

	keywordsCmd.AddCommand(keywordsListCmd)
	keywordsCmd.AddCommand(keywordsExtractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	texts, err := readTexts(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if extractLLM {
		eng, closeEngine, err := openEngine()
		if err != nil {
			return err
		}
		defer closeEngine()

		terms, tier := eng.SuggestKeywords(context.Background(), strings.Join(texts, "\n\n"), extractMax)
		logger.Debug("keywords suggested", zap.Stringer("tier", tier), zap.Int("count", len(terms)))
		for _, t := range terms {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range keyword.ExtractBatch(texts, extractMax) {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\n", c.Term, c.Frequency, c.Score)
	}
	return tw.Flush()
}

func readTexts(stdin io.Reader, paths []string) ([]string, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []string{string(data)}, nil
	}
	texts := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		texts = append(texts, string(data))
	}
	return texts, nil
}
