package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"embedgate/internal/app"
	"embedgate/pkg/linker"
	"embedgate/pkg/providers"
	"embedgate/pkg/resolver"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "embedgate",
	Short: "Iframe-unwrapping proxy and stream-link resolver",
	Long: `Embedgate composes watch links across streaming embed providers and
runs a local proxy that strips nested iframe ad wrappers from embed pages.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New()
		if err != nil {
			return fmt.Errorf("initialize application: %w", err)
		}
		defer application.Shutdown()
		return application.Run()
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url> | <slug> movie <tmdbId> | <slug> tv <tmdbId> <season> <episode>",
	Short: "Unwrap an embed URL once and print the result",
	Args:  cobra.RangeArgs(1, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New()
		if err != nil {
			return fmt.Errorf("initialize application: %w", err)
		}
		defer application.Shutdown()

		target := args[0]
		if len(args) >= 3 {
			target, err = composeTarget(application, args)
			if err != nil {
				return err
			}
		}

		if resolver.IsDirectStream(target) {
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), application.Resolver.Resolve(cmd.Context(), target))
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Print the provider registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New()
		if err != nil {
			return fmt.Errorf("initialize application: %w", err)
		}
		defer application.Shutdown()

		for _, p := range application.Registry.List("") {
			mode := string(p.Mode)
			if mode == "" {
				mode = "-"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-12s %-10s %s\n", p.Slug, p.Name, mode, p.BaseURL)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

// composeTarget builds the upstream embed URL from slug/type/id arguments.
func composeTarget(application *app.App, args []string) (string, error) {
	prov, err := application.Registry.BySlug(args[0])
	if err != nil {
		return "", err
	}

	nums := make([]int, 0, 3)
	for _, a := range args[2:] {
		n, err := strconv.Atoi(a)
		if err != nil {
			return "", fmt.Errorf("numeric argument expected, got %q", a)
		}
		nums = append(nums, n)
	}

	switch args[1] {
	case "movie":
		if len(nums) != 1 {
			return "", fmt.Errorf("movie takes exactly one TMDB id")
		}
		path, err := linker.MediaPath(providers.MediaMovie, nums[0], 0, 0)
		if err != nil {
			return "", err
		}
		return prov.BaseURL + path, nil
	case "tv":
		if len(nums) != 3 {
			return "", fmt.Errorf("tv takes a TMDB id, season, and episode")
		}
		path, err := linker.MediaPath(providers.MediaTV, nums[0], nums[1], nums[2])
		if err != nil {
			return "", err
		}
		return prov.BaseURL + path, nil
	default:
		return "", fmt.Errorf("unsupported media type %q", args[1])
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(versionCmd)
}
