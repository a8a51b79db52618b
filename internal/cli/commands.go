package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/core/usecase"
)

const snippetRunes = 40

func newSearchCommand(open Opener, opts *rootOptions) *cobra.Command {
	var (
		topK       int
		sourceOrgs []string
		docTypes   []string
		chunkTypes []string
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Run the multi-stage search and print ranked passages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryFromArgs(args)
			if err != nil {
				return err
			}
			var overrides domain.RetrievalOverrides
			if cmd.Flags().Changed("top-k") {
				overrides.TopK = &topK
			}
			overrides.SourceOrgs = sourceOrgs
			overrides.DocTypes = docTypes
			overrides.ChunkTypes = chunkTypes

			return withServices(cmd, open, opts, func(ctx context.Context, services Services) error {
				resp, err := services.Retrieval.Search(ctx, query, overrides)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				return printSearch(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "cap on returned passages (default: sum of stage budgets)")
	cmd.Flags().StringSliceVar(&sourceOrgs, "source-org", nil, "restrict case corpora to agencies (KCA, ECMC, KCDRC)")
	cmd.Flags().StringSliceVar(&docTypes, "doc-type", nil, "restrict to storage document types")
	cmd.Flags().StringSliceVar(&chunkTypes, "chunk-type", nil, "restrict to chunk types")
	return cmd
}

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze QUERY",
		Short: "Show how a question is classified, without touching any backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryFromArgs(args)
			if err != nil {
				return err
			}
			analysis := usecase.NewQueryAnalyzer().Analyze(query)
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), analysis)
			}
			return printAnalysis(cmd.OutOrStdout(), analysis)
		},
	}
}

func newRecommendCommand(open Opener, opts *rootOptions) *cobra.Command {
	var (
		topN     int
		evidence bool
		explain  bool
	)
	cmd := &cobra.Command{
		Use:   "recommend QUERY",
		Short: "Recommend the dispute agency for a complaint",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryFromArgs(args)
			if err != nil {
				return err
			}
			return withServices(cmd, open, opts, func(ctx context.Context, services Services) error {
				if explain {
					explanation, err := services.Agencies.ExplainAgencies(ctx, query, evidence)
					if err != nil {
						return err
					}
					if opts.jsonOutput {
						return writeJSON(cmd.OutOrStdout(), explanation)
					}
					if err := printAgencies(cmd.OutOrStdout(), explanation.Recommendations); err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "\nweights: rule=%.2f stat=%.2f, evidence results: %d\n",
						explanation.RuleWeight, explanation.StatWeight, explanation.TotalResults)
					return err
				}

				scores, err := services.Agencies.RecommendAgencies(ctx, query, topN, evidence)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), scores)
				}
				if err := printAgencies(cmd.OutOrStdout(), scores); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", usecase.FormatRecommendation(scores))
				return err
			})
		},
	}
	cmd.Flags().IntVar(&topN, "top-n", 3, "number of agencies to return (1-3)")
	cmd.Flags().BoolVar(&evidence, "evidence", false, "run retrieval first and blend in case statistics")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the full score breakdown")
	return cmd
}

func printSearch(w io.Writer, resp *domain.SearchResponse) error {
	if _, err := fmt.Fprintf(w, "query type: %s, dense: %t, results: %d\n\n", resp.QueryType, resp.DenseAvailable, len(resp.Results)); err != nil {
		return err
	}
	rows := make([][]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(r.DocType),
			r.ChunkID,
			strconv.FormatFloat(r.Similarity, 'f', 4, 64),
			r.SourceOrgValue(),
			snippet(r.DocTitle),
		})
	}
	if err := renderTable(w, []string{"rank", "corpus", "chunk", "score", "agency", "title"}, rows); err != nil {
		return err
	}
	if len(resp.AgencyRecommendation) > 0 {
		_, err := fmt.Fprintf(w, "\n%s\n", usecase.FormatRecommendation(resp.AgencyRecommendation))
		return err
	}
	return nil
}

func printAnalysis(w io.Writer, analysis domain.QueryAnalysis) error {
	refs := make([]string, 0, len(analysis.StatuteReferences))
	for _, ref := range analysis.StatuteReferences {
		refs = append(refs, strings.TrimSpace(ref.LawName+" "+ref.Article+" "+ref.Paragraph))
	}
	rows := [][]string{
		{"query_type", string(analysis.QueryType)},
		{"keywords", strings.Join(analysis.Terms(), ", ")},
		{"statutes", strings.Join(refs, ", ")},
		{"products", strings.Join(analysis.ProductTerms, ", ")},
		{"dispute_types", strings.Join(analysis.DisputeTypes, ", ")},
	}
	return renderTable(w, []string{"field", "value"}, rows)
}

func printAgencies(w io.Writer, scores []domain.AgencyScore) error {
	rows := make([][]string, 0, len(scores))
	for i, s := range scores {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			string(s.AgencyCode),
			s.Name,
			strconv.FormatFloat(s.FinalScore, 'f', 3, 64),
			strconv.FormatFloat(s.RuleScore, 'f', 3, 64),
			strconv.FormatFloat(s.StatScore, 'f', 3, 64),
		})
	}
	return renderTable(w, []string{"rank", "code", "agency", "final", "rule", "stat"}, rows)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
	)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

func snippet(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "…"
}
