// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veer-dev/veer/internal/client"
	"github.com/veer-dev/veer/internal/engine"
	"github.com/veer-dev/veer/internal/router"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt through the routing core",
		Long:  "Select a model, run the prompt with automatic fallback, and print the answer with usage and cost.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().StringP("model", "m", "", "preferred model, bypasses routing heuristics")
	cmd.Flags().StringP("task", "t", "", "task type hint for routing")
	cmd.Flags().String("system", "", "system prompt")
	cmd.Flags().Bool("stream", false, "stream the answer as it is generated")
	cmd.Flags().Int("max-tokens", 0, "maximum output tokens")
	cmd.Flags().Float64("temperature", -1, "sampling temperature")
	cmd.Flags().String("user", "", "caller to attribute cost to")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	core, err := WireCore(cfg)
	if err != nil {
		return err
	}
	defer core.Close()

	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" {
		return veererr.New(veererr.CodeCLIInputInvalid, "prompt must not be empty")
	}

	preferred, _ := cmd.Flags().GetString("model")
	task, _ := cmd.Flags().GetString("task")

	decision, err := core.Selector.Select(router.Query{
		Preferred:    preferred,
		TaskType:     task,
		MessageCount: 1,
		InputChars:   len(prompt),
	})
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "routed to %s (%s)\n", decision.Model, decision.Reason)
	}

	opts := askOptions(cmd)
	messages := []client.Message{{Role: client.RoleUser, Content: prompt}}

	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		return runAskStream(cmd, core, decision, messages, opts)
	}

	res, err := core.Engine.Generate(cmd.Context(), decision.FallbackChain, messages, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, res.Text)
	printUsage(cmd, res)
	return nil
}

func runAskStream(cmd *cobra.Command, core *Core, decision router.Decision, messages []client.Message, opts engine.Options) error {
	var final *engine.Result
	opts.OnFinish = func(r engine.Result) { final = &r }

	events, err := core.Engine.Stream(cmd.Context(), decision.FallbackChain, messages, opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for ev := range events {
		switch ev.Type {
		case client.EventTextDelta:
			fmt.Fprint(w, ev.Text)
		case client.EventError:
			fmt.Fprintln(w)
			return ev.Err
		}
	}
	fmt.Fprintln(w)

	if final != nil {
		printUsage(cmd, final)
	}
	return nil
}

func askOptions(cmd *cobra.Command) engine.Options {
	opts := engine.Options{}
	opts.System, _ = cmd.Flags().GetString("system")
	opts.MaxTokens, _ = cmd.Flags().GetInt("max-tokens")
	opts.Caller, _ = cmd.Flags().GetString("user")
	if temp, _ := cmd.Flags().GetFloat64("temperature"); temp >= 0 {
		opts.Temperature = &temp
	}
	return opts
}

func printUsage(cmd *cobra.Command, res *engine.Result) {
	fmt.Fprintf(cmd.ErrOrStderr(),
		"\n[%s] %d in / %d out tokens, $%.6f, %.0fms",
		res.Model, res.Usage.InputTokens, res.Usage.OutputTokens, res.CostUSD, res.LatencyMs)
	if res.FallbackUsed {
		fmt.Fprintf(cmd.ErrOrStderr(), " (after %d attempts)", res.Attempts)
	}
	fmt.Fprintln(cmd.ErrOrStderr())
}
