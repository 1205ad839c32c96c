package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/scrutin/scrutin/pkg/config"
	"github.com/scrutin/scrutin/pkg/results"
)

// readRows loads unit rows from a JSON file holding either an array of
// rows or an object with a "rows" array.
func readRows(path string) ([]results.UnitRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	var rows []results.UnitRow
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Rows []results.UnitRow `json:"rows"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parsing rows: %w", err)
		}
		rows = wrapped.Rows
	} else if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing rows: %w", err)
	}
	return rows, nil
}

func loadConfig() *config.Config {
	wd, err := os.Getwd()
	if err != nil {
		return config.DefaultConfig()
	}
	cfgFile := config.FindConfigFile(wd)
	if cfgFile == "" {
		return config.DefaultConfig()
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func printReport(report results.Report) {
	for _, rej := range report.Rejected {
		fmt.Fprintf(os.Stderr, "  Rejected: %v\n", rej)
	}
	for _, v := range report.Violations {
		fmt.Fprintf(os.Stderr, "  Warning: unit %s: %s\n", v.UnitID, v.Summary)
	}
}
