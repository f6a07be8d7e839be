package main

import (
	"flag"
	"fmt"
	"text/tabwriter"

	"mcpguard/internal/policy"
	"mcpguard/internal/registry"
)

func (a *app) cmdRegistry(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("registry: subcommand required (lookup, list)")
	}
	reg := registry.Default()

	switch args[0] {
	case "lookup":
		fs := flag.NewFlagSet("registry lookup", flag.ContinueOnError)
		fs.SetOutput(a.stderr)
		name := fs.String("name", "", "Configured server name")
		if err := fs.Parse(reorder(args[1:])); err != nil {
			return err
		}
		if fs.NArg() == 0 && *name == "" {
			return fmt.Errorf("registry lookup: source or --name required")
		}
		m, ok := reg.Lookup(fs.Arg(0), *name)
		if !ok {
			if a.jsonOut {
				return a.printJSON(nil)
			}
			fmt.Fprintln(a.stdout, "Unknown MCP server.")
			return nil
		}
		if a.jsonOut {
			return a.printJSON(m)
		}
		fmt.Fprintf(a.stdout, "ID:        %s\n", m.ID)
		fmt.Fprintf(a.stdout, "Name:      %s\n", m.Name)
		fmt.Fprintf(a.stdout, "Provider:  %s\n", m.Provider)
		fmt.Fprintf(a.stdout, "Type:      %s (%s)\n", m.Type, reg.TypeDefinition(m.Type))
		fmt.Fprintf(a.stdout, "Risk:      %s (%s)\n", m.RiskLevel, reg.RiskDefinition(m.RiskLevel))
		fmt.Fprintf(a.stdout, "Verified:  %t\n", m.Verified)
		if m.Package != "" {
			fmt.Fprintf(a.stdout, "Package:   %s\n", m.Package)
		}
		if m.Endpoint != "" {
			fmt.Fprintf(a.stdout, "Endpoint:  %s\n", m.Endpoint)
		}
		return nil

	case "list":
		fs := flag.NewFlagSet("registry list", flag.ContinueOnError)
		fs.SetOutput(a.stderr)
		provider := fs.String("provider", "", "Only this provider")
		risk := fs.String("risk", "", "Only this risk level")
		verified := fs.Bool("verified", false, "Only verified servers")
		remote := fs.Bool("remote", false, "Only servers with a network endpoint")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}

		mcps := reg.MCPs
		switch {
		case *provider != "":
			mcps = reg.ByProvider(*provider)
		case *risk != "":
			mcps = reg.ByRisk(policy.RiskLevel(*risk))
		case *verified:
			mcps = reg.Verified()
		case *remote:
			mcps = reg.WithEndpoints()
		}
		if a.jsonOut {
			return a.printJSON(mcps)
		}
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tTYPE\tRISK\tVERIFIED")
		for _, m := range mcps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", m.ID, m.Name, m.Provider, m.Type, m.RiskLevel, m.Verified)
		}
		return w.Flush()

	default:
		return fmt.Errorf("registry: unknown subcommand %q", args[0])
	}
}
