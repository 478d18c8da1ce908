package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/tiefsee/pkg/debug"
)

var tokenFlags struct {
	timeout time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage upstream refresh tokens",
}

var tokenCheckCmd = &cobra.Command{
	Use:   "check [token...]",
	Short: "Check whether refresh tokens are still accepted upstream",
	Long: `Check whether refresh tokens are still accepted upstream.

Without arguments the tokens from the configuration are checked. The command
exits with an error when at least one token is not live.`,
	RunE: runTokenCheck,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenCheckCmd)

	tokenCheckCmd.Flags().DurationVar(&tokenFlags.timeout, "timeout", 30*time.Second, "overall timeout for all checks")
}

func runTokenCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	tokens := args
	if len(tokens) == 0 {
		tokens = cfg.Credentials.Tokens
	}
	if len(tokens) == 0 {
		return fmt.Errorf("no tokens given and none configured")
	}

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), tokenFlags.timeout)
	defer cancel()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tLIVE")
	dead := 0
	for _, token := range tokens {
		live, err := c.engine.CheckToken(ctx, token)
		if err != nil {
			return err
		}
		if !live {
			dead++
		}
		fmt.Fprintf(w, "%s\t%t\n", debug.Mask(token), live)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if dead > 0 {
		return fmt.Errorf("%d of %d tokens are not live", dead, len(tokens))
	}
	return nil
}
