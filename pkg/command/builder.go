// Package command deterministically compiles a registry definition,
// parameters and a validated target into an argv vector. No LLM output
// reaches this layer; no string is ever handed to a shell.
package command

import (
	"sort"
	"strings"

	"sentra/internal/registry"
	sentraerrors "sentra/pkg/errors"
)

const (
	maxArgBytes = 1024
	maxArgv     = 64
)

// FinalCommand is the vetted result: a binary plus an argv vector,
// never a joined string.
type FinalCommand struct {
	Binary       string
	Argv         []string
	Target       string
	ToolID       string
	RequiresRoot bool
	Risk         registry.RiskLevel
	Parser       string
}

// Display renders the command for logs and the UI.
func (c *FinalCommand) Display() string {
	return c.Binary + " " + strings.Join(c.Argv, " ")
}

// Build merges the definition with parameters and the target.
//
// Algorithm: start from base args; for each provided parameter, split
// its template on whitespace and substitute {value} once; append the
// target last, behind the definition's target flag when one is set.
func Build(def *registry.ToolDef, target string, params map[string]string) (*FinalCommand, error) {
	if def == nil || def.Binary == "" {
		return nil, sentraerrors.NewCommandBuildError("no tool bound to intent")
	}

	if err := ValidateTarget(target); err != nil {
		return nil, err
	}

	argv := make([]string, 0, len(def.BaseArgs)+2*len(params)+2)
	argv = append(argv, def.BaseArgs...)

	merged := make(map[string]string, len(params)+len(def.DefaultParams))
	for name, value := range def.DefaultParams {
		merged[name] = value
	}
	for name, value := range params {
		merged[name] = value
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := merged[name]
		template, ok := def.ArgTemplates[name]
		if !ok {
			continue // parameters without a template are ignored, never improvised
		}
		if name == "ports" || name == "port" {
			if err := ValidatePortRange(value); err != nil {
				return nil, err
			}
		}
		for _, piece := range strings.Fields(template) {
			argv = append(argv, strings.Replace(piece, "{value}", value, 1))
		}
	}

	if def.TargetFlag != "" {
		argv = append(argv, def.TargetFlag, target)
	} else {
		argv = append(argv, target)
	}

	if len(argv) > maxArgv {
		return nil, sentraerrors.NewCommandBuildError("argv exceeds %d elements", maxArgv)
	}
	for _, arg := range argv {
		if err := validateArgument(arg); err != nil {
			return nil, err
		}
	}

	return &FinalCommand{
		Binary:       def.Binary,
		Argv:         argv,
		Target:       target,
		ToolID:       def.ToolID,
		RequiresRoot: def.RequiresRoot,
		Risk:         def.Risk,
		Parser:       def.Parser,
	}, nil
}
