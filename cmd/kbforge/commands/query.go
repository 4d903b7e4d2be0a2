package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbforge/pkg/query"
)

func newQueryCommand() *cobra.Command {
	var (
		question   string
		scenarios  string
		results    int32
		searchType string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask the knowledge base a question",
		Long: `Run a retrieve-and-generate query against the provisioned knowledge
base and print the grounded answer with its source citations.

With --question a single query runs. Without it the built-in scenario
suite runs, or a YAML scenario file supplied via --scenarios.`,
		Example: `  # Ask a one-off question
  kbforge query --question "What did the Q3 report conclude?"

  # Run the built-in scripted scenarios
  kbforge query

  # Run scenarios from a file, requesting more passages
  kbforge query --scenarios checks.yaml --results 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			client, err := query.NewClient(a.aws.BedrockRuntime, a.settings, a.log)
			if err != nil {
				return err
			}

			if question != "" {
				answer, err := client.Ask(ctx, question, query.Options{
					NumberOfResults: results,
					SearchType:      searchType,
				})
				if err != nil {
					return err
				}
				fmt.Println(answer.Text)
				if len(answer.Citations) > 0 {
					fmt.Println("Sources:")
					for _, citation := range answer.Citations {
						fmt.Printf("  - %s: %s\n", citation.URI, citation.Preview)
					}
				}
				return nil
			}

			suite := query.DefaultScenarios()
			if scenarios != "" {
				suite, err = query.LoadScenarios(scenarios)
				if err != nil {
					return err
				}
			}
			if results > 0 || searchType != "" {
				for i := range suite {
					if results > 0 {
						suite[i].NumberOfResults = results
					}
					if searchType != "" {
						suite[i].SearchType = searchType
					}
				}
			}

			return client.RunScenarios(ctx, suite, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "single question to ask")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "YAML file with scripted scenarios")
	cmd.Flags().Int32Var(&results, "results", 0, "number of passages to retrieve")
	cmd.Flags().StringVar(&searchType, "search-type", "", "retrieval search type override (SEMANTIC or HYBRID)")

	return cmd
}
