package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a3tai/formcheck/internal/app"
	"github.com/a3tai/formcheck/internal/classifier"
	"github.com/a3tai/formcheck/internal/config"
	"github.com/a3tai/formcheck/internal/logging"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/template"
)

var errFailed = errors.New("one or more documents failed")

// options holds the command line settings.
type options struct {
	format     string
	formType   string
	diagnostic bool
	verbose    bool
	help       bool
	cfg        *config.Config
}

// Result represents the outcome for one input file
type Result struct {
	FilePath       string             `json:"file_path"`
	Report         *report.FormReport `json:"report,omitempty"`
	Classification *classifier.Result `json:"classification,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{cfg: config.DefaultConfig()}
	cfg := opts.cfg

	fs := pflag.NewFlagSet("formcheck-validate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.format, "format", "text", "Output format: text, json")
	fs.StringVar(&opts.formType, "form-type", "", "Validate against this form type instead of classifying")
	fs.BoolVar(&opts.diagnostic, "diagnostic", false, "Include classification scores and evidence")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log progress to stderr")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show help message")
	fs.StringVar(&cfg.TemplateDirectory, "templates", cfg.TemplateDirectory, "Directory containing template documents")
	fs.Float64Var(&cfg.AcceptThreshold, "threshold", cfg.AcceptThreshold, "Confidence a template must exceed to be matched")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent section workers per document")
	fs.DurationVar(&cfg.ExtractorTimeout, "extractor-timeout", cfg.ExtractorTimeout, "Timeout for each extraction")
	fs.StringVar(&cfg.OCRURL, "ocr-url", cfg.OCRURL, "Apache Tika base URL for OCR")
	fs.StringVar(&cfg.OCRLanguage, "ocr-language", cfg.OCRLanguage, "OCR language passed to Tika")
	fs.Int64Var(&cfg.MaxFileSize, "maxfilesize", cfg.MaxFileSize, "Maximum document size in bytes")
	fs.Usage = func() { printHelp(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if opts.help {
		return opts, nil, nil
	}

	if opts.format != "text" && opts.format != "json" {
		return nil, nil, fmt.Errorf("unsupported output format: %s", opts.format)
	}

	// any path on the command line is allowed
	cfg.DocumentDirectory = ""
	cfg.LogLevel = "warn"
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, files, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.help {
		printHelp(stdout, nil)
		return nil
	}
	if len(files) == 0 {
		printUsage(stderr)
		return errors.New("at least one document path is required")
	}

	logger, err := logging.New(opts.cfg.LogLevel, logging.FormatText, stderr)
	if err != nil {
		return err
	}

	a, err := app.New(opts.cfg, logger)
	if err != nil {
		return err
	}

	results := make([]Result, 0, len(files))
	failed := false
	for _, file := range files {
		r := check(ctx, a, opts, file)
		if r.Error != "" || (r.Report != nil && r.Report.Status == report.StatusError) {
			failed = true
		}
		results = append(results, r)
	}

	if err := output(stdout, opts, results); err != nil {
		return err
	}
	if failed {
		return errFailed
	}
	return nil
}

func check(ctx context.Context, a *app.App, opts *options, file string) Result {
	result := Result{FilePath: file}
	if abs, err := filepath.Abs(file); err == nil {
		result.FilePath = abs
	}

	pages, err := a.Loader.Load(ctx, file)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if opts.diagnostic {
		c := a.Engine.Classify(ctx, pages)
		result.Classification = &c
	}

	if opts.formType != "" {
		result.Report = a.Engine.Validate(ctx, template.FormType(opts.formType), pages)
	} else {
		result.Report = a.Engine.Process(ctx, pages)
	}
	return result
}

func output(w io.Writer, opts *options, results []Result) error {
	if opts.format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if len(results) == 1 {
			return encoder.Encode(results[0])
		}
		return encoder.Encode(results)
	}

	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		outputText(w, r)
	}
	return nil
}

func outputText(w io.Writer, r Result) {
	fmt.Fprintf(w, "%s\n", r.FilePath)
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
		return
	}

	rep := r.Report
	fmt.Fprintf(w, "  Status: %s\n", rep.Status)
	fmt.Fprintf(w, "  Form type: %s", rep.FormType)
	if rep.Template != "" {
		fmt.Fprintf(w, " (template %s)", rep.Template)
	}
	fmt.Fprintf(w, "\n  Confidence: %.2f\n", rep.Confidence)
	if rep.Message != "" {
		fmt.Fprintf(w, "  Message: %s\n", rep.Message)
	}

	for _, name := range rep.SectionNames() {
		s := rep.Sections[name]
		mark := "[ ]"
		if s.Filled {
			mark = "[x]"
		}
		fmt.Fprintf(w, "  %s %s (%s, page %d)", mark, name, s.SectionType, s.Page)
		if s.Error != "" {
			fmt.Fprintf(w, " error: %s", s.Error)
		}
		fmt.Fprintln(w)
		for _, key := range s.Details.Keys() {
			fmt.Fprintf(w, "        %s: %v\n", key, s.Details[key])
		}
	}
	if len(rep.Sections) > 0 {
		fmt.Fprintf(w, "  SIP details filled: %t\n", rep.SIPDetailsFilled)
		fmt.Fprintf(w, "  OTM details filled: %t\n", rep.OTMDetailsFilled)
	}
	if rep.Schemes != nil {
		fmt.Fprintf(w, "  Schemes filled: %d of %d\n", rep.Schemes.Filled, rep.Schemes.Total)
	}
	if rep.AttachedSIP != nil && rep.AttachedSIP.Found {
		fmt.Fprintf(w, "  Attached SIP form: page %d\n", rep.AttachedSIP.Page)
	}

	if r.Classification != nil {
		printDiagnostics(w, r.Classification)
	}
}

func printDiagnostics(w io.Writer, c *classifier.Result) {
	fmt.Fprintln(w, "  Diagnostics:")
	for _, name := range slices.Sorted(maps.Keys(c.Scores)) {
		fmt.Fprintf(w, "    score %-24s %.3f\n", name, c.Scores[name])
	}
	for _, alt := range c.Alternatives {
		fmt.Fprintf(w, "    alternative %s (%s) %.3f\n", alt.Template, alt.FormType, alt.Confidence)
	}
	for _, reason := range c.Reasons {
		fmt.Fprintf(w, "    section %s page %d: %.3f %s\n", reason.Section, reason.Page, reason.Score, reason.Evidence)
	}
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "formcheck-validate - classify scanned forms and report which sections are filled")
	fmt.Fprintln(w)
	printUsage(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	if fs != nil {
		fs.SetOutput(w)
		fs.PrintDefaults()
	} else {
		fmt.Fprintln(w, "  --format        Output format: text (default), json")
		fmt.Fprintln(w, "  --form-type     Validate against this form type instead of classifying")
		fmt.Fprintln(w, "  --templates     Directory containing template documents")
		fmt.Fprintln(w, "  --diagnostic    Include classification scores and evidence")
		fmt.Fprintln(w, "  --ocr-url       Apache Tika base URL for OCR")
		fmt.Fprintln(w, "  --verbose       Log progress to stderr")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  formcheck-validate --templates ./templates scan.pdf")
	fmt.Fprintln(w, "  formcheck-validate --form-type \"CA Form\" --format json ca-1123.png")
	fmt.Fprintln(w, "  formcheck-validate --diagnostic inward/*.pdf")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXIT STATUS:")
	fmt.Fprintln(w, "  0 all documents processed, 1 a document failed, 2 usage or setup error")
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  formcheck-validate [OPTIONS] <document>...")
}
