// sabuffer is a CLI for converting buffer models to and from weighted
// buffer attaches and planning their vertex cache offsets.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/sa3d-weighted/internal/config"
	"github.com/Faultbox/sa3d-weighted/internal/gltfio"
	"github.com/Faultbox/sa3d-weighted/internal/inspect"
	"github.com/Faultbox/sa3d-weighted/internal/logger"
	"github.com/Faultbox/sa3d-weighted/internal/sceneio"
	"github.com/Faultbox/sa3d-weighted/pkg/scene"
	"github.com/Faultbox/sa3d-weighted/pkg/weighted"
)

var errSceneMismatch = errors.New("weighted document does not match the scene")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "import":
		err = cmdImport(args)
	case "weight":
		err = cmdWeight(args)
	case "rebuild":
		err = cmdRebuild(args)
	case "plan":
		err = cmdPlan(args)
	case "preview":
		err = cmdPreview(args)
	case "info":
		err = cmdInfo(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sabuffer - weighted buffer model converter

Usage:
  sabuffer <command> [options] <args>

Commands:
  import  <model.gltf|glb> <scene.yaml>           Import a glTF model as a buffered scene
  weight  <scene.yaml> <weighted.yaml>            Convert buffer attaches to weighted attaches
  rebuild <scene.yaml> [weighted.yaml] <out.yaml> Write weighted attaches back as buffer attaches
  plan    <scene.yaml>                            Show the vertex offset plan of a rebuild
  preview <scene.yaml> <out.glb>                  Export the evaluated scene as glTF
  info    <scene.yaml|weighted.yaml>              Show a scene or weighted attach report

Options (every command):
  -config <path>     Config file (default ./sabuffer.yaml or user config dir)
  -debug             Enable debug logging
  -format <name>     Output attach format: buffer, basic, chunk, gc
  -combine           Combine weighted attaches at their dependency roots
  -optimize          Deduplicate vertices and corners
  -ignore-weights    Write weighted attaches as rigid meshes
  -log-file <path>   Also log to a rotating file

Examples:
  sabuffer import -combine character.glb character.yaml
  sabuffer rebuild -optimize character.yaml character_rebuilt.yaml
  sabuffer plan character.yaml`)
}

// setup parses the command's flags, loads the config and initializes
// logging. It returns the positional arguments.
func setup(name string, args []string, extra func(fs *flag.FlagSet)) (*config.Config, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	flags := config.BindFlags(fs)
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.InitWithOptions(loggerOptions(cfg.Logging)); err != nil {
		return nil, nil, err
	}
	weighted.SetLogger(logger.Named("weighted"))

	return cfg, fs.Args(), nil
}

// loggerOptions logs to stderr and, when a log file is set, to a rotating
// file. Rotation limits left at zero use the logger defaults.
func loggerOptions(cfg config.LoggingConfig) logger.Options {
	opts := logger.Options{
		Level:   cfg.Level,
		Console: os.Stderr,
	}
	if cfg.LogFile == "" {
		return opts
	}

	file := logger.DefaultFileConfig(cfg.LogFile)
	if cfg.MaxSizeMB > 0 {
		file.MaxSizeMB = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		file.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		file.MaxAgeDays = cfg.MaxAgeDays
	}
	file.Compress = cfg.Compress
	opts.File = file
	return opts
}

func usageError(usage string) error {
	return errors.Errorf("usage: sabuffer %s", usage)
}

func cmdImport(args []string) error {
	cfg, rest, err := setup("import", args, nil)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return usageError("import <model.gltf|glb> <scene.yaml>")
	}

	importer := gltfio.NewImporter(logger.Named("gltf"), gltfio.ImportOptions{
		CombineAtDependencyRoots: cfg.Convert.CombineAtDependencyRoots,
		Optimize:                 cfg.Convert.Optimize,
		IgnoreWeights:            cfg.Convert.IgnoreWeights,
	})
	root, err := importer.ImportFile(rest[0])
	if err != nil {
		return err
	}

	if err := sceneio.WriteSceneFile(rest[1], root); err != nil {
		return err
	}
	logger.Info("scene written", zap.String("path", rest[1]), zap.Int("nodes", len(root.GetObjects())))
	return nil
}

func cmdWeight(args []string) error {
	cfg, rest, err := setup("weight", args, nil)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return usageError("weight <scene.yaml> <weighted.yaml>")
	}

	root, err := sceneio.ParseSceneFile(rest[0])
	if err != nil {
		return err
	}

	attaches, err := weighted.ToWeightedBuffer(root, cfg.Convert.CombineAtDependencyRoots)
	if err != nil {
		return err
	}

	doc := sceneio.WeightedDocument{Nodes: inspect.NodeNames(root), Attaches: attaches}
	if err := sceneio.WriteWeightedFile(rest[1], doc); err != nil {
		return err
	}
	logger.Info("weighted attaches written", zap.String("path", rest[1]), zap.Int("attaches", len(attaches)))
	return nil
}

// loadAttaches reads weighted attaches from a file, checking that they were
// made for root, or converts root's own attaches.
func loadAttaches(root *scene.Node, path string, combine bool) ([]*weighted.WeightedBufferAttach, error) {
	if path == "" {
		return weighted.ToWeightedBuffer(root, combine)
	}

	doc, err := sceneio.ParseWeightedFile(path)
	if err != nil {
		return nil, err
	}

	names := inspect.NodeNames(root)
	if len(doc.Nodes) != len(names) {
		return nil, errors.Wrapf(errSceneMismatch, "%s was made for %d nodes, scene has %d", path, len(doc.Nodes), len(names))
	}
	for i := range names {
		if doc.Nodes[i] != names[i] {
			logger.Warn("node name differs from weighted document",
				zap.Int("index", i),
				zap.String("scene", names[i]),
				zap.String("document", doc.Nodes[i]))
		}
	}

	if !combine {
		return doc.Attaches, nil
	}
	return weighted.CombineAtDependencyRoots(doc.Attaches, scene.ParentIndices(root.GetObjects()))
}

func cmdRebuild(args []string) error {
	cfg, rest, err := setup("rebuild", args, nil)
	if err != nil {
		return err
	}

	var scenePath, weightedPath, outPath string
	switch len(rest) {
	case 2:
		scenePath, outPath = rest[0], rest[1]
	case 3:
		scenePath, weightedPath, outPath = rest[0], rest[1], rest[2]
	default:
		return usageError("rebuild <scene.yaml> [weighted.yaml] <out.yaml>")
	}

	format, err := cfg.AttachFormat()
	if err != nil {
		return err
	}

	root, err := sceneio.ParseSceneFile(scenePath)
	if err != nil {
		return err
	}

	attaches, err := loadAttaches(root, weightedPath, cfg.Convert.CombineAtDependencyRoots)
	if err != nil {
		return err
	}

	if err := weighted.FromWeightedBuffer(root, attaches, format, cfg.Convert.Optimize, cfg.Convert.IgnoreWeights); err != nil {
		return err
	}

	if err := sceneio.WriteSceneFile(outPath, root); err != nil {
		return err
	}
	logger.Info("scene rebuilt",
		zap.String("path", outPath),
		zap.Stringer("format", format),
		zap.Int("attaches", len(attaches)))
	return nil
}

func cmdPlan(args []string) error {
	cfg, rest, err := setup("plan", args, nil)
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return usageError("plan <scene.yaml> [weighted.yaml]")
	}

	root, err := sceneio.ParseSceneFile(rest[0])
	if err != nil {
		return err
	}

	weightedPath := ""
	if len(rest) > 1 {
		weightedPath = rest[1]
	}
	attaches, err := loadAttaches(root, weightedPath, cfg.Convert.CombineAtDependencyRoots)
	if err != nil {
		return err
	}

	results, err := weighted.BuildBufferResults(attaches, cfg.Convert.Optimize, cfg.Convert.IgnoreWeights)
	if err != nil {
		return err
	}
	starts := weighted.PlanVertexOffsets(results)

	inspect.WritePlanReport(os.Stdout, results, starts, inspect.NodeNames(root))
	return nil
}

func cmdPreview(args []string) error {
	cfg, rest, err := setup("preview", args, nil)
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return usageError("preview <scene.yaml> <out.glb|gltf>")
	}

	root, err := sceneio.ParseSceneFile(rest[0])
	if err != nil {
		return err
	}

	opts := gltfio.ExportOptions{Scale: cfg.Preview.Scale}
	if err := gltfio.ExportFile(rest[1], root, opts, cfg.Preview.Binary, logger.Named("gltf")); err != nil {
		return err
	}
	logger.Info("preview written", zap.String("path", rest[1]))
	return nil
}

func cmdInfo(args []string) error {
	var weightedInput, dump bool
	_, rest, err := setup("info", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&weightedInput, "weighted", false, "Input is a weighted attach document")
		fs.BoolVar(&dump, "dump", false, "Dump the decoded data")
	})
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return usageError("info [-weighted] [-dump] <file.yaml>")
	}

	if weightedInput {
		doc, err := sceneio.ParseWeightedFile(rest[0])
		if err != nil {
			return err
		}
		inspect.WriteWeightedReport(os.Stdout, doc.Attaches, doc.Nodes)
		if dump {
			inspect.Dump(os.Stdout, doc.Attaches)
		}
		return nil
	}

	root, err := sceneio.ParseSceneFile(rest[0])
	if err != nil {
		return err
	}
	inspect.WriteSceneReport(os.Stdout, root)
	if dump {
		for _, n := range root.GetObjects() {
			if n.Attach() != nil {
				fmt.Printf("\n%s:\n", n.Name)
				inspect.Dump(os.Stdout, n.Attach())
			}
		}
	}
	return nil
}
