package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ai-labeller/internal/app"
	"ai-labeller/internal/detector"
	"ai-labeller/internal/export"
	"ai-labeller/internal/fusion"
	"ai-labeller/internal/labels"
	"ai-labeller/internal/project"
	"ai-labeller/internal/session"
	"ai-labeller/internal/stats"
	"ai-labeller/pkg/geometry"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// project opens the dataset at dir on the configured split.
func (o *options) project(dir string) (*project.Project, error) {
	mode, err := labels.ParseMode(o.cfg.Mode)
	if err != nil {
		return nil, err
	}
	p, err := project.Open(dir, mode)
	if err != nil {
		return nil, err
	}
	if o.cfg.Split != "" {
		if err := p.SetSplit(o.cfg.Split); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// findImage resolves an image argument, a file name or an index, in the
// active split.
func findImage(p *project.Project, arg string) (int, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		if i < 0 || i >= len(p.Images) {
			return -1, fmt.Errorf("image index %d out of range [0,%d)", i, len(p.Images))
		}
		return i, nil
	}
	_, i, ok := lo.FindIndexOf(p.Images, func(img string) bool {
		return filepath.Base(img) == arg
	})
	if !ok {
		return -1, fmt.Errorf("image %s in split %s: %w", arg, p.Split, labels.ErrNotFound)
	}
	return i, nil
}

func newInfoCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dataset>",
		Short: "Show the dataset layout, splits and class names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := o.navigator(cmd.Context(), args[0], false, 0)
			if err != nil {
				return err
			}
			defer nav.Close()
			info, err := nav.Info()
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := p.structured(info); ok {
				return err
			}
			p.title("Dataset %s", info.Root)
			p.field("mode", info.Mode)
			p.field("splits", strings.Join(info.Splits, ", "))
			p.field("split", info.Split)
			p.field("images", info.Count)
			p.field("classes", strings.Join(info.Classes, ", "))
			if info.Image != "" {
				p.field("first", fmt.Sprintf("%s (%d boxes)", filepath.Base(info.Image), info.Boxes))
			}
			return nil
		},
	}
}

func newClassesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classes <dataset> [names...]",
		Short: "Show or replace the class names",
		Long: `Without names, prints the class names of the dataset. With names, replaces
them and writes classes.txt. Names may be given as separate arguments or as a
single comma-separated list.`,
		Example: `  ai-labeller classes ./dataset
  ai-labeller classes ./dataset cat,dog,bird`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			if len(args) > 1 {
				names, err := project.ParseClassNames(strings.Join(args[1:], "\n"))
				if err != nil {
					return err
				}
				if err := p.SetClasses(names); err != nil {
					return err
				}
			}

			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(p.Classes); ok {
				return err
			}
			for i, name := range p.Classes {
				out.line("%d %s", i, out.class(i, name))
			}
			return nil
		},
	}
}

func newLabelsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "labels <dataset> <image>",
		Short: "Print the boxes of one image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			i, err := findImage(p, args[1])
			if err != nil {
				return err
			}
			lbl, err := p.Store().Load(p.Split, p.Images[i])
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(lbl); ok {
				return err
			}
			out.title("%s %dx%d", filepath.Base(lbl.ImagePath), lbl.Width, lbl.Height)
			if !lbl.HasLabelFile {
				out.warning("no label file")
			}
			rows := lo.Map(lbl.Boxes, func(b geometry.Box, i int) []string {
				return []string{
					strconv.Itoa(i), p.ClassName(b.ClassID),
					fmt.Sprintf("%.1f", b.X1), fmt.Sprintf("%.1f", b.Y1),
					fmt.Sprintf("%.1f", b.X2), fmt.Sprintf("%.1f", b.Y2),
				}
			})
			out.table([]string{"#", "CLASS", "X1", "Y1", "X2", "Y2"}, rows)
			return nil
		},
	}
}

func newFuseCommand(o *options) *cobra.Command {
	var iou float64
	cmd := &cobra.Command{
		Use:   "fuse <dataset>",
		Short: "Merge overlapping boxes of the same class in every labeled image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			store := p.Store()
			changed, merged := 0, 0
			for _, img := range p.Images {
				lbl, err := store.Load(p.Split, img)
				if err != nil {
					logger.Warnf("Skipping %s: %v", filepath.Base(img), err)
					continue
				}
				if !lbl.HasLabelFile {
					continue
				}
				sess := session.New(img, lbl.Width, lbl.Height)
				sess.Load(lbl.Boxes)
				before := sess.Len()
				if !sess.Fuse(iou) || sess.Len() == before {
					continue
				}
				if err := store.Save(p.Split, img, sess.Boxes()); err != nil {
					return err
				}
				changed++
				merged += before - sess.Len()
			}
			newPrinter(cmd.OutOrStdout(), o.output).success("Fused %d boxes in %d of %d images", merged, changed, len(p.Images))
			return nil
		},
	}
	cmd.Flags().Float64Var(&iou, "iou", fusion.DefaultThreshold, "IoU above which same-class boxes are merged")
	return cmd
}

func newDetectCommand(o *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "detect <dataset> [images...]",
		Short: "Pre-label images with the detector",
		Long: `Runs the detector on the given images, or on every image of the split
without a label file, and appends the detected boxes to their labels. With
--all, images that already have labels are processed too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			targets := p.Images
			if len(args) > 1 {
				targets = nil
				for _, a := range args[1:] {
					i, err := findImage(p, a)
					if err != nil {
						return err
					}
					targets = append(targets, p.Images[i])
				}
			}

			adapter := o.adapter()
			defer adapter.Close()
			opts := detector.Options{Model: o.cfg.Model, Confidence: o.cfg.Confidence, DefaultClass: o.cfg.DefaultClass}
			store := p.Store()
			processed, added, failed := 0, 0, 0
			for _, img := range targets {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				lbl, err := store.Load(p.Split, img)
				if err != nil {
					return err
				}
				if lbl.HasLabelFile && !all && len(args) == 1 {
					continue
				}
				sess := session.New(img, lbl.Width, lbl.Height)
				sess.Load(lbl.Boxes)
				res, err := adapter.Apply(cmd.Context(), sess, opts)
				if err != nil {
					logger.Errorf("Detection failed on %s: %v", filepath.Base(img), err)
					failed++
					continue
				}
				processed++
				if res.Added == 0 {
					continue
				}
				if err := store.Save(p.Split, img, sess.Boxes()); err != nil {
					return err
				}
				added += res.Added
			}
			out := newPrinter(cmd.OutOrStdout(), o.output)
			out.success("Detected %d boxes in %d images", added, processed)
			if failed > 0 {
				out.warning("%d images failed", failed)
				return fmt.Errorf("detection failed on %d images", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also process images that already have labels")
	return cmd
}

func newExportCommand(o *options) *cobra.Command {
	var (
		outDir  string
		format  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "export <dataset>",
		Short: "Export the dataset as a YOLO tree or JSON annotations",
		Example: `  ai-labeller export ./dataset --out ./yolo
  ai-labeller export ./dataset --out ./json --format json --split val`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				format = o.cfg.ExportFormat
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			nav, err := o.navigator(cmd.Context(), args[0], false, 0)
			if err != nil {
				return err
			}
			defer nav.Close()

			summary, err := nav.Export(cmd.Context(), export.Options{
				OutputDir: outDir,
				Format:    f,
				Split:     o.cfg.Split,
				Workers:   workers,
			})
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(summary); ok {
				return err
			}
			out.success("Exported %d/%d images to %s", summary.Exported, summary.Total, summary.Output)
			for _, e := range summary.Errors {
				out.warning("  %s", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (required)")
	cmd.Flags().StringVar(&format, "format", "yolo", "Export format: yolo, json")
	cmd.Flags().IntVar(&workers, "workers", 0, "Images processed in parallel (default from config)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newRemoveCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <dataset> <image>",
		Short: "Move an image and its labels to the removed registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			i, err := findImage(p, args[1])
			if err != nil {
				return err
			}
			if _, err := p.Store().Remove(p.Split, p.Images[i]); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout(), o.output).success("Removed %s", filepath.Base(p.Images[i]))
			return nil
		},
	}
}

func newRestoreCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <dataset> <filename>",
		Short: "Move a removed image back into its split",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			_, removed, err := p.Store().Restore(p.Split, args[1])
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout(), o.output)
			out.success("Restored %s", args[1])
			if len(removed) > 0 {
				out.line("%d still removed", len(removed))
			}
			return nil
		},
	}
}

func newRemovedCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "removed <dataset>",
		Short: "List the images removed from the split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			removed, err := p.Store().Removed(p.Split)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(removed); ok {
				return err
			}
			for _, f := range removed {
				out.line("%s", f)
			}
			return nil
		},
	}
}

func newStatsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dataset>",
		Short: "Summarize labels per split and class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(args[0])
			if err != nil {
				return err
			}
			var all []stats.SplitStats
			if o.cfg.Split != "" {
				s, err := stats.Compute(p.Store(), p.Split, p.Classes)
				if err != nil {
					return err
				}
				all = []stats.SplitStats{*s}
			} else if all, err = stats.ComputeAll(p.Store(), p.Classes); err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(all); ok {
				return err
			}
			for _, s := range all {
				out.title("%s: %d images, %d labeled, %d unlabeled, %d boxes", s.Split, s.Images, s.Labeled, s.Unlabeled, s.Boxes)
				if s.Unreadable > 0 {
					out.warning("%d unreadable images", s.Unreadable)
				}
				rows := lo.Map(s.Classes, func(c stats.ClassStats, _ int) []string {
					return []string{
						strconv.Itoa(c.ClassID), c.Name, strconv.Itoa(c.Count),
						fmt.Sprintf("%.3f±%.3f", c.MeanWidth, c.StdWidth),
						fmt.Sprintf("%.3f±%.3f", c.MeanHeight, c.StdHeight),
						fmt.Sprintf("%.4f", c.MinArea),
						fmt.Sprintf("%.4f", c.MedianArea),
						fmt.Sprintf("%.4f", c.MaxArea),
					}
				})
				out.table([]string{"ID", "CLASS", "BOXES", "WIDTH", "HEIGHT", "MIN AREA", "MEDIAN", "MAX AREA"}, rows)
			}
			return nil
		},
	}
}

func newEditCommand(o *options) *cobra.Command {
	var (
		scriptPath string
		start      int
	)
	cmd := &cobra.Command{
		Use:   "edit <dataset>",
		Short: "Apply edit commands to the dataset, starting at one image",
		Long: `Reads edit commands from --script or stdin, one per line:

  press X Y | move X Y | release X Y
  select I | class N | active N | resize X1 Y1 X2 Y2
  delete | clear | undo | redo | fuse [IOU] | detect
  save | next | prev | goto I | split NAME | boxes | quit

Labels are saved when moving to another image and when the script ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if scriptPath != "" && scriptPath != "-" {
				f, err := os.Open(scriptPath)
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer f.Close()
				in = f
			}

			nav, err := o.navigator(cmd.Context(), args[0], true, start)
			if err != nil {
				return err
			}
			nav.On(app.EventImageLoaded, func(data interface{}) {
				ev := data.(app.ImageLoaded)
				logger.Infof("Image %d: %s (%d boxes, %s)", ev.Index, filepath.Base(ev.Path), ev.Boxes, ev.Source)
			})

			runErr := app.NewScript(nav, cmd.OutOrStdout()).Run(cmd.Context(), in)
			if err := nav.Close(); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "Command file (default: stdin)")
	cmd.Flags().IntVar(&start, "start", 0, "Index of the first image to open")
	return cmd
}
