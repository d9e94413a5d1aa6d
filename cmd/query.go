package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/app"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/retrieval"
)

var (
	querySessionID string
	queryUserID    string
	queryLanguage  string
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer one question through the retrieval orchestrator",
	Long: "Query classifies the question, fans out to the chunk, summary, and graph " +
		"stores in parallel, reranks the fused hits, generates a response, and resolves " +
		"the social tipping point. Pass --session to continue an existing conversation.",
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&querySessionID, "session", "", "session ID to continue")
	queryCmd.Flags().StringVar(&queryUserID, "user", "cli", "user ID recorded on the session")
	queryCmd.Flags().StringVar(&queryLanguage, "language", "en", "session language tag")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfg, logManager.Logger())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background services: the evaluation worker picks up the exchange
	// if it ticks before exit; otherwise the remaining queue depth is
	// logged on shutdown.
	a.Start(ctx)

	resp, err := a.Query.Answer(ctx, retrieval.QueryRequest{
		Query:     strings.Join(args, " "),
		SessionID: querySessionID,
		UserID:    queryUserID,
		Language:  queryLanguage,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode response; %w", err)
	}
	fmt.Println(string(out))
	return nil
}
