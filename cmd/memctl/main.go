// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command memctl is the CLI client for the Aleutian Memory server.
//
// Usage:
//
//	memctl bank ops --mission "track operational incidents"
//	memctl retain ops "postgres upgrade finished" --entity postgres
//	memctl recall ops "postgres upgrade"
//	memctl reflect ops "is the postgres upgrade done?"
//
// The server address comes from --server or ALEUTIAN_MEMORY_URL and
// defaults to http://localhost:8080.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flag values shared across subcommands.
var (
	serverURL     string
	bankMission   string
	itemKind      string
	itemEntities  []string
	recallLimit   int
	maxIterations int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memctl",
		Short: "Client for the Aleutian Memory server",
		Long: "memctl talks to a running memoryd instance: create banks, retain\n" +
			"facts, recall them by keyword, and ask reflect questions.",
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Memory server base URL (default $ALEUTIAN_MEMORY_URL or http://localhost:8080)")

	bankCmd := &cobra.Command{
		Use:   "bank <name>",
		Short: "Create or update a memory bank",
		Args:  cobra.ExactArgs(1),
		Run:   runBankCommand,
	}
	bankCmd.Flags().StringVar(&bankMission, "mission", "", "Mission statement for the bank")

	retainCmd := &cobra.Command{
		Use:   "retain <bank> <text>...",
		Short: "Store one or more memory items in a bank",
		Args:  cobra.MinimumNArgs(2),
		Run:   runRetainCommand,
	}
	retainCmd.Flags().StringVar(&itemKind, "kind", "",
		"Item kind: fact, reflection, or mental_model (default fact)")
	retainCmd.Flags().StringSliceVar(&itemEntities, "entity", nil,
		"Entity tag, repeatable (applied to every item)")

	recallCmd := &cobra.Command{
		Use:   "recall <bank> <query>...",
		Short: "Keyword search over a bank",
		Args:  cobra.MinimumNArgs(2),
		Run:   runRecallCommand,
	}
	recallCmd.Flags().IntVar(&recallLimit, "limit", 0, "Maximum results (server default 10)")

	reflectCmd := &cobra.Command{
		Use:   "reflect <bank> <question>...",
		Short: "Ask a question answered by the tool-calling reflect loop",
		Args:  cobra.MinimumNArgs(2),
		Run:   runReflectCommand,
	}
	reflectCmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		"Cap on reflect loop rounds (cannot exceed the server's budget)")

	rootCmd.AddCommand(bankCmd, retainCmd, recallCmd, reflectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getServerBaseURL resolves the server address from the flag, the
// environment, or the default, in that order.
func getServerBaseURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("ALEUTIAN_MEMORY_URL"); env != "" {
		return env
	}
	return "http://localhost:8080"
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
