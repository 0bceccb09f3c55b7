// sift-lint validates a rules file and reports every issue it finds. It
// exits non-zero when the file contains errors, so it can guard a rules
// change before sift-apply ever runs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sortedmail/sift/internal/rules"
	"github.com/sortedmail/sift/internal/runtime"
)

type lintConfig struct {
	rulesFile string
	strict    bool
}

func main() {
	cfg := parseLintFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("sift-lint failed", "error", err)
		os.Exit(1)
	}
}

func parseLintFlags() lintConfig {
	rulesFile := flag.String("rules", "rules.json", "path to the rules file")
	strict := flag.Bool("strict", false, "treat warnings as failures")
	flag.Parse()

	if flag.NArg() == 1 {
		return lintConfig{rulesFile: flag.Arg(0), strict: *strict}
	}
	return lintConfig{rulesFile: *rulesFile, strict: *strict}
}

func run(cfg lintConfig) error {
	data, err := os.ReadFile(cfg.rulesFile)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	doc, err := rules.ParseDocument(data)
	if err != nil {
		return err
	}

	issues := rules.Validate(doc)
	for _, issue := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s\n", issue.Severity, issue.Error())
	}

	errors := rules.Errors(issues)
	warnings := rules.Warnings(issues)
	switch {
	case len(errors) > 0:
		return fmt.Errorf("%d error(s), %d warning(s) in %s", len(errors), len(warnings), cfg.rulesFile)
	case cfg.strict && len(warnings) > 0:
		return fmt.Errorf("%d warning(s) in %s (strict mode)", len(warnings), cfg.rulesFile)
	}
	fmt.Printf("%s: %d rule(s) valid\n", cfg.rulesFile, len(doc.Rules))
	return nil
}
