// Command ic10c is the compiler's CLI surface (§4.L): a single binary
// exposing a "compile" subcommand over the core driver and a
// "gen-catalogue" subcommand over the (entirely separate) device
// catalogue generator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/thomasfn/CsToMips/internal/cache"
	"github.com/thomasfn/CsToMips/internal/catalogue"
	"github.com/thomasfn/CsToMips/internal/compiledriver"
	"github.com/thomasfn/CsToMips/internal/diag"
	"github.com/thomasfn/CsToMips/internal/ir"
)

// compilerVersion is stamped into compile cache keys so a stale on-disk
// entry from a previous build is never served across an upgrade (§4.M).
const compilerVersion = "0.1.0"

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is kept separate from main so the dispatch logic is testable
// without touching os.Exit or the real stdout/stderr streams.
func doMain(stdOut, stdErr io.Writer) int {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "Prints usage.")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		return 0
	}

	switch subCmd := flag.Arg(0); subCmd {
	case "compile":
		return doCompile(flag.Args()[1:], stdOut, stdErr)
	case "gen-catalogue":
		return doGenCatalogue(flag.Args()[1:], stdErr)
	case "version":
		fmt.Fprintln(stdOut, compilerVersion)
		return 0
	default:
		fmt.Fprintf(stdErr, "invalid command %q\n", subCmd)
		printUsage(stdErr)
		return 1
	}
}

func doCompile(args []string, stdOut, stdErr io.Writer) int {
	flags := flag.NewFlagSet("compile", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var classesPath string
	flags.StringVar(&classesPath, "classes", "", "Path to a JSON file holding the already-resolved ir.Class array to compile.")

	var outDir string
	flags.StringVar(&outDir, "out", ".", "Directory to write one {ClassName}.ic10 file into per compiled class.")

	var verbose bool
	flags.BoolVar(&verbose, "v", false, "Enables debug-level structured logging.")

	var optimise bool
	flags.BoolVar(&optimise, "optimize", true, "Runs the IC10 optimiser over each compiled class.")

	var useCache bool
	flags.BoolVar(&useCache, "cache", true, "Enables the on-disk compile cache.")

	var cacheDir string
	flags.StringVar(&cacheDir, "cachedir", "", "Directory for the on-disk compile cache. Defaults to an in-memory-only cache when empty.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if help {
		printCompileUsage(stdErr, flags)
		return 0
	}
	if classesPath == "" {
		fmt.Fprintln(stdErr, "missing -classes")
		printCompileUsage(stdErr, flags)
		return 1
	}

	classes, err := loadClasses(classesPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading classes: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(stdErr, "error creating output directory: %v\n", err)
		return 1
	}

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logger := logrus.NewEntry(diag.NewLogger(stdErr, level))

	var compileCache *cache.Cache
	if useCache {
		compileCache = cache.New(cacheDir)
	}

	opts := compiledriver.Options{
		Optimise: optimise,
		Cache:    compileCache,
		Version:  compilerVersion,
		Logger:   logger,
	}

	results := compiledriver.CompileClasses(context.Background(), classes, opts)

	failed := false
	for _, result := range results {
		if result.Err != nil {
			failed = true
			continue
		}
		outPath := filepath.Join(outDir, result.Class+".ic10")
		if err := os.WriteFile(outPath, []byte(result.Text), 0o644); err != nil {
			fmt.Fprintf(stdErr, "error writing %s: %v\n", outPath, err)
			failed = true
			continue
		}
		fmt.Fprintf(stdOut, "compiled %s -> %s\n", result.Class, outPath)
	}

	if failed {
		return 1
	}
	return 0
}

func loadClasses(path string) ([]*ir.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var classes []*ir.Class
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

func doGenCatalogue(args []string, stdErr io.Writer) int {
	flags := flag.NewFlagSet("gen-catalogue", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "Prints usage.")

	var inPath string
	flags.StringVar(&inPath, "in", "", "Path to PrefabData.json.")

	var outPath string
	flags.StringVar(&outPath, "out", "catalogue_generated.go", "Path to write the generated Go source fragment to.")

	var packageName string
	flags.StringVar(&packageName, "package", "catalogue", "Package clause for the generated file.")

	var verbose bool
	flags.BoolVar(&verbose, "v", false, "Enables debug-level structured logging.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if help {
		printGenCatalogueUsage(stdErr, flags)
		return 0
	}
	if inPath == "" {
		fmt.Fprintln(stdErr, "missing -in")
		printGenCatalogueUsage(stdErr, flags)
		return 1
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading %s: %v\n", inPath, err)
		return 1
	}

	descriptors, err := catalogue.Load(data)
	if err != nil {
		fmt.Fprintf(stdErr, "error parsing %s: %v\n", inPath, err)
		return 1
	}

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	logger := logrus.NewEntry(diag.NewLogger(stdErr, level))

	text := catalogue.Generate(packageName, descriptors, logger)
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		fmt.Fprintf(stdErr, "error writing %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "ic10c: compiles SBIL program classes into IC10 assembly")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  ic10c <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  compile\t\tCompiles program classes to .ic10 files")
	fmt.Fprintln(stdErr, "  gen-catalogue\t\tGenerates the device interface catalogue from PrefabData.json")
	fmt.Fprintln(stdErr, "  version\t\tPrints the compiler version")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "Usage:\n  ic10c compile -classes <path> [options]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printGenCatalogueUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "Usage:\n  ic10c gen-catalogue -in <path to PrefabData.json> [options]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
