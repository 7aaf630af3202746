package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/transcript"
)

var (
	analyzeForce bool
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <conversation-id> [transcript.jsonl]",
	Short: "Import a transcript and analyze the conversation",
	Long: "Reads JSONL messages into the conversation and runs analysis. Without a transcript the " +
		"stored messages are re-checked; --force re-analyzes everything.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runAnalyze,
}

var (
	proposalsRefresh  bool
	proposalsSubjects []string
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals <conversation-id>",
	Short: "List past subjects related to a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runProposals,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Re-analyze even without new messages")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the full result as JSON")

	proposalsCmd.Flags().BoolVar(&proposalsRefresh, "refresh", false, "Bypass the proposal cache")
	proposalsCmd.Flags().StringSliceVar(&proposalsSubjects, "subject", nil, "Current subject ids (default: all active)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	conversationID := args[0]
	eng, closeEngine, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine()

	var msgs []model.Message
	if len(args) == 2 {
		msgs, err = transcript.ParseFile(args[1], conversationID)
		if err != nil {
			return err
		}
	}

	res, err := eng.AnalyzeConversation(context.Background(), conversationID, msgs, analyzeForce)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	out := cmd.OutOrStdout()
	if analyzeJSON {
		return printJSON(out, res)
	}

	if !res.Analyzed {
		fmt.Fprintf(out, "%s: %d new messages, below threshold; nothing analyzed\n", conversationID, res.NewMessages)
		return nil
	}
	fmt.Fprintf(out, "%s: %d new messages, %d subjects (%d new, %d archived, %d revived), summary v%d\n",
		conversationID, res.NewMessages, len(res.Subjects), res.NewSubjects, res.Archived, res.Revived, res.SummaryVersion)
	for _, s := range res.Subjects {
		fmt.Fprintf(out, "  %s  %-40s  %d msgs\n", s.ID, s.Keywords, s.MessageCount)
	}
	terms := make([]string, len(res.Keywords))
	for i, k := range res.Keywords {
		terms[i] = k.Term
	}
	fmt.Fprintf(out, "keywords: %s\n", strings.Join(terms, ", "))
	return nil
}

func runProposals(cmd *cobra.Command, args []string) error {
	ids := make([]uuid.UUID, 0, len(proposalsSubjects))
	for _, raw := range proposalsSubjects {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("subject id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}

	eng, closeEngine, err := openEngine()
	if err != nil {
		return err
	}
	defer closeEngine()

	res, err := eng.GetProposals(context.Background(), args[0], ids, proposalsRefresh)
	if err != nil {
		return fmt.Errorf("proposals: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(res.Proposals) == 0 {
		fmt.Fprintln(out, "No related past subjects.")
		return nil
	}
	for i, p := range res.Proposals {
		fmt.Fprintf(out, "%d. [%.3f] %s (from %s)\n", i+1, p.RelevanceScore, strings.Join(p.MatchedKeywords, ", "), p.SourceConversationID)
		if p.PastDescription != "" {
			fmt.Fprintf(out, "   %s\n", p.PastDescription)
		}
	}
	return nil
}
