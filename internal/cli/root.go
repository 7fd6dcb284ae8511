// Package cli implements the ai-labeller command line.
package cli

import (
	"context"
	"fmt"

	"ai-labeller/internal/app"
	"ai-labeller/internal/config"
	"ai-labeller/internal/detector"
	"ai-labeller/internal/detector/onnx"
	"ai-labeller/internal/labels"
	"ai-labeller/internal/version"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// options are the flags shared by every command.
type options struct {
	logger.Flags

	configPath string
	output     string

	mode       string
	split      string
	model      string
	confidence float64
	class      int
	propagate  bool
	autoDetect bool

	cfg *config.Config
	// factory builds detectors; tests replace it.
	factory detector.Factory
}

func bindGlobalFlags(flags *pflag.FlagSet, o *options) {
	flags.CountVarP(&o.LevelCount, "loglevel", "v", "Increase logging level")
	flags.StringVar(&o.Level, "log-level", "info", "Set the default log level")
	flags.BoolVar(&o.JsonLogs, "json-logs", false, "Print logs in json format to stderr")
	flags.BoolVar(&o.ReportCaller, "report-caller", false, "Report log caller info")
	flags.BoolVar(&o.LogToStderr, "log-to-stderr", true, "Log to stderr instead of stdout")

	flags.StringVar(&o.configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	flags.StringVarP(&o.output, "output", "o", outputText, "Output format: text, json, yaml")

	flags.StringVar(&o.mode, "mode", "", "Dataset mode: images, yolo, rfdetr")
	flags.StringVar(&o.split, "split", "", "Split to work on (default: train, or the first with images)")
	flags.StringVar(&o.model, "model", "", "Detection model file or library name")
	flags.Float64Var(&o.confidence, "conf", 0, "Detection confidence threshold")
	flags.IntVar(&o.class, "class", 0, "Class id for detected and drawn boxes")
	flags.BoolVar(&o.propagate, "propagate", true, "Copy the previous image's boxes onto unlabeled images")
	flags.BoolVar(&o.autoDetect, "auto-detect", false, "Run the detector on unlabeled images")
}

// setup configures logging, loads the config file and applies flag overrides.
func (o *options) setup(flags *pflag.FlagSet) error {
	logger.Configure(o.Flags)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		logger.Warnf("Using default config: %v", err)
	}
	if flags.Changed("mode") {
		cfg.Mode = o.mode
	}
	if flags.Changed("split") {
		cfg.Split = o.split
	}
	if flags.Changed("model") {
		cfg.Model = o.model
	}
	if flags.Changed("conf") {
		cfg.Confidence = o.confidence
	}
	if flags.Changed("class") {
		cfg.DefaultClass = o.class
	}
	if flags.Changed("propagate") {
		cfg.Propagate = o.propagate
	}
	if flags.Changed("auto-detect") {
		cfg.AutoDetect = o.autoDetect
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch o.output {
	case outputText, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
	o.cfg = cfg
	logger.Debugf("Config %s: mode=%s split=%q model=%q conf=%.2f", o.configPath, cfg.Mode, cfg.Split, cfg.Model, cfg.Confidence)
	return nil
}

// adapter builds the detector adapter from the config.
func (o *options) adapter() *detector.Adapter {
	factory := o.factory
	if factory == nil {
		factory = onnx.Factory(onnx.Params{
			InputSize:    o.cfg.InputSize,
			NMSThreshold: o.cfg.NMSThreshold,
			MinScore:     onnx.DefaultParams().MinScore,
		})
	}
	return detector.NewAdapter(detector.NewLibrary(o.cfg.Models...), factory)
}

// navigator opens the dataset at dir on image start. Unless prelabel is set,
// images without labels are never auto-detected, so read-only commands do not
// write labels.
func (o *options) navigator(ctx context.Context, dir string, prelabel bool, start int) (*app.Navigator, error) {
	mode, err := labels.ParseMode(o.cfg.Mode)
	if err != nil {
		return nil, err
	}
	cfg := *o.cfg
	if !prelabel {
		cfg.AutoDetect = false
	}
	nav := app.New(&cfg, o.adapter())
	if err := nav.OpenProjectAt(ctx, dir, mode, start); err != nil {
		nav.Close()
		return nil, err
	}
	return nav, nil
}

// NewRootCommand builds the ai-labeller command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "ai-labeller",
		Short: "Bounding-box annotation and dataset conversion for object detection",
		Long: `ai-labeller edits bounding-box labels of image datasets (flat folders,
YOLO trees and RF-DETR trees), pre-labels images with an ONNX detector and
exports datasets as YOLO trees or JSON annotation files.`,
		Example: `  ai-labeller info ./dataset --mode yolo
  ai-labeller edit ./dataset --mode yolo --script edits.txt
  ai-labeller export ./dataset --out ./export --format json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd.Flags())
		},
	}
	bindGlobalFlags(root.PersistentFlags(), o)

	root.AddCommand(
		newInfoCommand(o),
		newClassesCommand(o),
		newLabelsCommand(o),
		newFuseCommand(o),
		newDetectCommand(o),
		newExportCommand(o),
		newRemoveCommand(o),
		newRestoreCommand(o),
		newRemovedCommand(o),
		newStatsCommand(o),
		newEditCommand(o),
		newModelsCommand(o),
		newConfigCommand(o),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
