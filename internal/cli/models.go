package cli

import (
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newModelsCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the detection model library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := o.adapter().Library()
			current, err := lib.Resolve(o.cfg.Model)
			if err != nil {
				return err
			}
			models := lib.Models()
			if !lo.Contains(models, current) {
				models = append(models, current)
			}

			out := newPrinter(cmd.OutOrStdout(), o.output)
			if ok, err := out.structured(models); ok {
				return err
			}
			for _, m := range models {
				mark := " "
				if m == current {
					mark = "*"
				}
				out.line("%s %s", mark, m)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <model-file>",
		Short: "Add a model file to the library and make it the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := o.adapter().Library().Import(args[0])
			if err != nil {
				return err
			}
			if !lo.Contains(o.cfg.Models, id) {
				o.cfg.Models = append(o.cfg.Models, id)
			}
			o.cfg.Model = id
			if err := o.cfg.Save(o.configPath); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout(), o.output).success("Imported %s", id)
			return nil
		},
	})
	return cmd
}

func newConfigCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newPrinter(cmd.OutOrStdout(), outputYAML)
			if o.output == outputJSON {
				out.format = outputJSON
			}
			_, err := out.structured(o.cfg)
			return err
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Write the effective configuration, flags included, to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.cfg.Save(o.configPath); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout(), o.output).success("Saved %s", o.configPath)
			return nil
		},
	})
	return cmd
}
