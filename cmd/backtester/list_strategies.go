package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var listStrategiesCmd = &cobra.Command{
	Use:   "list-strategies",
	Short: "List registered strategy classes",
	RunE:  runListStrategies,
}

func init() {
	f := listStrategiesCmd.Flags()
	f.String("strategy", "", "show only this strategy")
	f.Bool("details", false, "include parameters and lookback")
	f.String("format", "human", "output format: human|json")
}

func runListStrategies(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	name, _ := f.GetString("strategy")
	details, _ := f.GetBool("details")
	format, _ := f.GetString("format")

	a, err := newApp()
	if err != nil {
		return fail(exitFatalOrLocked, err)
	}

	names := a.registry.ListStrategies()
	if name != "" {
		if !a.registry.IsValid(name) {
			return fail(exitPartialFailure, fmt.Errorf("unknown strategy class %q", name))
		}
		names = []string{name}
	}
	sort.Strings(names)

	descriptors := make([]map[string]any, 0, len(names))
	for _, n := range names {
		desc, ok := a.registry.Describe(n)
		if !ok {
			continue
		}
		entry := map[string]any{"name": desc.Name, "description": desc.Description}
		if details {
			entry["parameters"] = desc.Parameters
			entry["lookback"] = desc.Lookback
		}
		descriptors = append(descriptors, entry)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"strategies": descriptors})
	}

	w := cmd.OutOrStdout()
	for _, entry := range descriptors {
		fmt.Fprintf(w, "%-20s %s\n", entry["name"], entry["description"])
		if details {
			fmt.Fprintf(w, "  lookback:   %v\n", entry["lookback"])
			fmt.Fprintf(w, "  parameters: %v\n", entry["parameters"])
		}
	}
	return nil
}
