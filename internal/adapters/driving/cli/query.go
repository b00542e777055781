package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/bastion/internal/adapters/driving/cli/styles"
	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driving"
)

var (
	queryTopK      int
	queryMode      string
	queryThreshold float64
	queryFilters   []string
	queryNoRerank  bool
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text...>",
	Short: "Ask a question of the indexed documents",
	Long: `Answer a question from the indexed documents as the acting user.

Retrieval is semantic by default. Hybrid mode fuses vector similarity with
keyword search using reciprocal rank fusion. Answers are only released when
every source is within the user's clearance; otherwise the query is denied
and the denial is audited.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: needs(ScopeFull),
	RunE:        runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "Number of passages to use (default from config)")
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "", "Retrieval mode: semantic or hybrid (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "Minimum similarity (default from config)")
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "Metadata filter key=value (repeatable)")
	queryCmd.Flags().BoolVar(&queryNoRerank, "no-rerank", false, "Skip re-ranking")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output the response as JSON")
	rootCmd.AddCommand(queryCmd)
}

// queryResult is the JSON form of a response.
type queryResult struct {
	Query          string        `json:"query"`
	Answer         string        `json:"answer"`
	Classification string        `json:"classification"`
	Valid          bool          `json:"valid"`
	Denied         bool          `json:"denied"`
	DenialReason   string        `json:"denial_reason,omitempty"`
	Warning        string        `json:"warning,omitempty"`
	Sources        []querySource `json:"sources"`
	Mode           string        `json:"mode,omitempty"`
	Reranked       bool          `json:"reranked"`
}

type querySource struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	Source         string  `json:"source"`
	Classification string  `json:"classification"`
	Score          float64 `json:"score"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	opts, err := queryOptions(cmd)
	if err != nil {
		return err
	}

	resp, err := queryService.Query(cmd.Context(), userID, strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		return writeJSON(cmd.OutOrStdout(), toQueryResult(resp))
	}
	printResponse(cmd, outputStyles(cmd.OutOrStdout()), resp)
	return nil
}

func queryOptions(cmd *cobra.Command) (driving.QueryOptions, error) {
	opts := driving.QueryOptions{TopK: queryTopK, NoRerank: queryNoRerank}
	if queryTopK < 0 {
		return opts, fmt.Errorf("%w: --top-k must be positive", domain.ErrInvalidInput)
	}
	if queryMode != "" {
		mode := domain.RetrievalMode(strings.ToLower(queryMode))
		if !mode.IsValid() {
			return opts, fmt.Errorf("%w: unknown mode %q (use semantic or hybrid)", domain.ErrInvalidInput, queryMode)
		}
		opts.Mode = mode
	}
	if cmd.Flags().Changed("threshold") {
		if queryThreshold < 0 || queryThreshold > 1 {
			return opts, fmt.Errorf("%w: --threshold must be between 0 and 1", domain.ErrInvalidInput)
		}
		threshold := queryThreshold
		opts.Threshold = &threshold
	}
	filters, err := parseFilters(queryFilters)
	if err != nil {
		return opts, err
	}
	opts.Filters = filters
	return opts, nil
}

// parseFilters turns key=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: filter %q is not key=value", domain.ErrInvalidInput, pair)
		}
		filters[key] = strings.TrimSpace(value)
	}
	return filters, nil
}

func printResponse(cmd *cobra.Command, st *styles.Styles, resp *domain.Response) {
	if resp.Denied {
		cmd.Println(st.Error.Render(resp.Answer))
		return
	}

	cmd.Println(st.Banner(resp.Classification))
	cmd.Println()
	cmd.Println(resp.Answer)
	cmd.Println()

	if resp.Warning != "" {
		cmd.Println(st.Warning.Render(resp.Warning))
	}
	if !resp.IsValid {
		cmd.Println(st.Warning.Render("Note: the answer did not pass the safety filter."))
	}

	if len(resp.Sources) > 0 {
		cmd.Println("Sources:")
		for i, src := range resp.Sources {
			cmd.Printf("  %d. %s %s\n", i+1, src.Source(),
				st.Muted.Render(fmt.Sprintf("(%s, score %.3f)", src.Classification, src.Score)))
		}
	}
	if verbose {
		m := resp.Metadata
		cmd.Println(st.Muted.Render(fmt.Sprintf("mode=%s retrieved=%d similarity avg=%.3f min=%.3f max=%.3f reranked=%t",
			m.Mode, m.RetrievedCount, m.AvgSimilarity, m.MinSimilarity, m.MaxSimilarity, m.Reranked)))
	}
}

func toQueryResult(resp *domain.Response) queryResult {
	out := queryResult{
		Query:          resp.Query,
		Answer:         resp.Answer,
		Classification: resp.Classification.String(),
		Valid:          resp.IsValid,
		Denied:         resp.Denied,
		DenialReason:   resp.DenialReason,
		Warning:        resp.Warning,
		Sources:        make([]querySource, 0, len(resp.Sources)),
		Mode:           resp.Metadata.Mode.String(),
		Reranked:       resp.Metadata.Reranked,
	}
	for _, src := range resp.Sources {
		out.Sources = append(out.Sources, querySource{
			ChunkID:        src.ChunkID,
			DocumentID:     src.DocumentID(),
			Source:         src.Source(),
			Classification: src.Classification.String(),
			Score:          src.Score,
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// outputStyles styles output for a terminal and emits plain text otherwise.
func outputStyles(w io.Writer) *styles.Styles {
	f, ok := w.(*os.File)
	plain := !ok || !term.IsTerminal(int(f.Fd()))
	return styles.NewStyles(nil, plain)
}
