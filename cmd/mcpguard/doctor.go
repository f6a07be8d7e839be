package main

import (
	"fmt"

	"mcpguard/internal/config"
)

// cmdDoctor reports governance controls the configuration weakens. It
// fails when any violation is fatal.
func (a *app) cmdDoctor() error {
	violations := a.cfg.Violations()
	if a.jsonOut {
		if violations == nil {
			violations = []config.Violation{}
		}
		if err := a.printJSON(violations); err != nil {
			return err
		}
	} else if len(violations) == 0 {
		fmt.Fprintln(a.stdout, "✓ all governance controls are active")
	} else {
		for _, v := range violations {
			icon := "⚠"
			if v.Severity == config.SeverityFatal {
				icon = "✗"
			}
			fmt.Fprintf(a.stdout, "%s [%s] %s\n    %s\n", icon, v.Module, v.Description, v.Remediation)
		}
	}
	for _, v := range violations {
		if v.Severity == config.SeverityFatal {
			return fmt.Errorf("fatal governance violations in configuration")
		}
	}
	return nil
}
