package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/1broseidon/framelink/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigPrintCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigPathCommand(ctx))

	return configCmd
}

func newConfigPrintCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Show effective settings and where each one came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.ensureLoaded()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(config.Paths()))
			for _, path := range config.Paths() {
				value, src, err := config.Explain(res, path)
				if err != nil {
					return err
				}
				rows = append(rows, []string{path, formatValue(value), config.FormatSource(src)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Setting", "Value", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, " ")
	case string:
		if val == "" {
			return "-"
		}
		return val
	}
	return fmt.Sprint(v)
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.ensureLoaded()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.path)
			if len(res.Files) == 0 {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			} else if len(res.Files) > 1 {
				fmt.Fprintf(out, "Included files: %s\n", strings.Join(res.Files[:len(res.Files)-1], ", "))
			}
			if res.Config.Renderer == "" {
				fmt.Fprintln(out, "No renderer configured; pass one to 'framelink run'")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var targetPath string
	var rendererPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a configuration file with the built-in defaults",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				p, err := ctx.configPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = p
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			cfg := config.DefaultConfig()
			cfg.Renderer = strings.TrimSpace(rendererPath)
			if err := cfg.Save(target); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote configuration to %s\n", target)
			if cfg.Renderer == "" {
				fmt.Fprintln(out, "Set renderer to the executable framelink should launch.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().StringVar(&rendererPath, "renderer", "", "Renderer executable to record in the file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the configuration file location",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
