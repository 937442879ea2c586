package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"catalog-loader/internal/ingest"
	"catalog-loader/internal/store"
)

var printCQL bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the items, reviews_by_user and reviews_by_item tables",
	Long: `Create the three catalog tables if they do not exist yet.

With --cql the canonical CQL definitions are printed instead and nothing is
contacted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if printCQL {
			fmt.Fprint(cmd.OutOrStdout(), store.CQL())
			return nil
		}

		s, err := openSession(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.catalog.CreateTables(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
		return nil
	},
}

var loadItemsCmd = &cobra.Command{
	Use:   "load-items <path>",
	Short: "Bulk-load a line-delimited JSON items file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd, args[0], ingest.KindItems)
	},
}

var loadReviewsCmd = &cobra.Command{
	Use:   "load-reviews <path>",
	Short: "Bulk-load a line-delimited JSON reviews file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd, args[0], ingest.KindReviews)
	},
}

func runLoad(cmd *cobra.Command, path string, kind ingest.Kind) error {
	s, err := openSession(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer s.close()

	var report *ingest.Report
	if kind == ingest.KindItems {
		report, err = s.catalog.LoadItems(cmd.Context(), path)
	} else {
		report, err = s.catalog.LoadReviews(cmd.Context(), path)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), report.String())
	return nil
}

var itemCmd = &cobra.Command{
	Use:   "item <asin>",
	Short: "Print one item with its categories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer s.close()

		out, err := s.catalog.Item(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var userReviewsCmd = &cobra.Command{
	Use:   "user-reviews <reviewerID>",
	Short: "Print the reviews of one reviewer, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer s.close()

		reviews, err := s.catalog.UserReviews(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReviews(cmd, reviews)
		return nil
	},
}

var itemReviewsCmd = &cobra.Command{
	Use:   "item-reviews <asin>",
	Short: "Print the reviews of one item, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer s.close()

		reviews, err := s.catalog.ItemReviews(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReviews(cmd, reviews)
		return nil
	},
}

func printReviews(cmd *cobra.Command, reviews []string) {
	for _, r := range reviews {
		fmt.Fprint(cmd.OutOrStdout(), r)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total %d reviews\n", len(reviews))
}

func init() {
	schemaCmd.Flags().BoolVar(&printCQL, "cql", false, "print the CQL table definitions and exit")

	rootCmd.AddCommand(schemaCmd, loadItemsCmd, loadReviewsCmd, itemCmd, userReviewsCmd, itemReviewsCmd)
}
