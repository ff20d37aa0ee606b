// manualctl: command line presentation layer for a go-manual daemon
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-manual/internal/control"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/protocol"
)

var version = "0.3.0"

func main() {
	var (
		addr       string
		timeout    time.Duration
		verbose    bool
		followRate int
	)

	newClient := func() *control.Client {
		cfg := control.DefaultConfig()
		cfg.BaseURL = baseURL(addr)
		cfg.Timeout = timeout
		cfg.RateLimitHz = followRate
		return control.NewClient(cfg, cliLogger(verbose))
	}

	rootCmd := &cobra.Command{
		Use:   "manualctl",
		Short: "Control a go-manual placement daemon",
		Long: `manualctl edits the position, orientation, context and identity that a
go-manual daemon hands to the positional audio host, and toggles link consent.

Negative numbers must follow "--", e.g. "manualctl azimuth --signed -- -90".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:9010", "daemon address (host:port or URL)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// state command - print the editable state
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := newClient().State(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(view)
		},
	}

	// pos command - set coordinates
	var posX, posY, posZ float64
	var follow bool
	posCmd := &cobra.Command{
		Use:   "pos [x y z]",
		Short: "Set the position",
		Long: `Set all three coordinates, or only those given with --x, --y and --z.

With --follow, read "x y z" lines from stdin and drag to each in turn, at
most --rate moves per second. The last line is always applied.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("accepts 0 or 3 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				if len(args) != 0 || cmd.Flags().Changed("x") || cmd.Flags().Changed("y") || cmd.Flags().Changed("z") {
					return fmt.Errorf("--follow reads positions from stdin")
				}

				client := newClient()
				if !client.IsHealthy(cmd.Context()) {
					return fmt.Errorf("daemon at %s is unreachable or degraded", addr)
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				err := followPositions(ctx, client, cmd.InOrStdin())
				printClientStats(cmd.ErrOrStderr(), client.GetStats())
				return err
			}

			var pos protocol.PositionData

			if len(args) == 3 {
				coords, err := parseFloats(args)
				if err != nil {
					return err
				}
				pos = protocol.PositionData{X: &coords[0], Y: &coords[1], Z: &coords[2]}
			} else {
				if cmd.Flags().Changed("x") {
					pos.X = &posX
				}
				if cmd.Flags().Changed("y") {
					pos.Y = &posY
				}
				if cmd.Flags().Changed("z") {
					pos.Z = &posZ
				}
			}

			return printView(newClient().SetCoordinates(cmd.Context(), pos))
		},
	}
	posCmd.Flags().Float64Var(&posX, "x", 0, "x coordinate")
	posCmd.Flags().Float64Var(&posY, "y", 0, "y coordinate (height)")
	posCmd.Flags().Float64Var(&posZ, "z", 0, "z coordinate")
	posCmd.Flags().BoolVar(&follow, "follow", false, "drag along x y z lines read from stdin")
	posCmd.Flags().IntVar(&followRate, "rate", control.DefaultConfig().RateLimitHz, "max moves per second with --follow (0 = unlimited)")

	// ground command - pick a point on the top-down map
	groundCmd := &cobra.Command{
		Use:   "ground [x] [y]",
		Short: "Place yourself at a point on the top-down map",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := parseFloats(args)
			if err != nil {
				return err
			}
			return printView(newClient().SetGroundPoint(cmd.Context(), pt[0], pt[1]))
		},
	}

	// azimuth and elevation commands
	var azimuthSigned, elevationSigned bool
	azimuthCmd := &cobra.Command{
		Use:   "azimuth [degrees]",
		Short: "Set the heading (0..360, or -180..180 with --signed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deg, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid degrees %q: %w", args[0], err)
			}
			return printView(newClient().SetAzimuth(cmd.Context(), deg, azimuthSigned))
		},
	}
	azimuthCmd.Flags().BoolVar(&azimuthSigned, "signed", false, "use the -180..180 convention")

	elevationCmd := &cobra.Command{
		Use:   "elevation [degrees]",
		Short: "Set the pitch (dial 0 up..180 down, or -90..90 with --signed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deg, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid degrees %q: %w", args[0], err)
			}
			return printView(newClient().SetElevation(cmd.Context(), deg, elevationSigned))
		},
	}
	elevationCmd.Flags().BoolVar(&elevationSigned, "signed", false, "use the -90..90 convention")

	// context and identity commands
	contextCmd := &cobra.Command{
		Use:   "context [value]",
		Short: "Set the context string (empty clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetContext(cmd.Context(), strings.Join(args, "")))
		},
	}

	identityCmd := &cobra.Command{
		Use:   "identity [value]",
		Short: "Set the identity string (empty clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetIdentity(cmd.Context(), strings.Join(args, "")))
		},
	}

	// consent and activity toggles
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Allow the host to link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetLinked(cmd.Context(), true))
		},
	}

	unlinkCmd := &cobra.Command{
		Use:   "unlink",
		Short: "Withdraw link consent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetLinked(cmd.Context(), false))
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate",
		Short: "Report the real position to the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetActive(cmd.Context(), true))
		},
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Report the origin to the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().SetActive(cmd.Context(), false))
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore all defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printView(newClient().Reset(cmd.Context()))
		},
	}

	// fetch command - poll like the host does
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Poll positional data the way the host does",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, ok, err := newClient().Fetch(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("refused: linking is not allowed")
				return nil
			}
			return printJSON(snap)
		},
	}

	// info command - plugin names and daemon health
	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show plugin names and daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			info, err := client.Info(cmd.Context())
			if err != nil {
				return err
			}
			status, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("%s - %s\n", info.ShortName, info.Description)
			fmt.Printf("  %s\n", info.LongDescription)
			fmt.Println()
			fmt.Printf("  Daemon:   %s (v%s, up %ds)\n", status.Status, status.Version, status.UptimeSeconds)
			fmt.Printf("  Linkable: %v  Active: %v\n", stats.Linkable, stats.Active)
			fmt.Printf("  Fetches:  %d  Refusals: %d  Unlocks: %d\n", stats.Fetches, stats.Refusals, stats.Unlocks)
			names := make([]string, 0, len(status.Components))
			for name := range status.Components {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				if check := status.Components[name]; !check.Healthy {
					fmt.Printf("  Unhealthy: %s (%s)\n", name, check.Message)
				}
			}
			if verbose {
				printClientStats(os.Stderr, client.GetStats())
			}
			return nil
		},
	}

	// watch command - follow the event stream
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow state events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := control.DefaultWatcherConfig()
			cfg.URL = streamURL(addr)

			watcher := control.NewWatcher(cfg, cliLogger(verbose))
			watcher.OnState(func(v placement.View) {
				printLine("state", v)
			})
			watcher.OnEvent(func(e placement.Event) {
				printLine(string(e.Kind), e.View)
			})
			watcher.OnError(func(e protocol.ErrorData) {
				fmt.Fprintf(os.Stderr, "error: %s\n", e.Message)
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := watcher.Connect(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			watcher.Close()

			if verbose {
				ws := watcher.GetStats()
				fmt.Fprintf(os.Stderr, "received %d, sent %d, reconnects %d\n",
					ws.MessagesReceived, ws.MessagesSent, ws.Reconnects)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		stateCmd, posCmd, groundCmd, azimuthCmd, elevationCmd,
		contextCmd, identityCmd, linkCmd, unlinkCmd, activateCmd,
		deactivateCmd, resetCmd, fetchCmd, infoCmd, watchCmd,
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func cliLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// baseURL accepts host:port or a full URL
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}

func streamURL(addr string) string {
	base := baseURL(addr)
	base = "ws" + strings.TrimPrefix(base, "http")
	return base + "/api/stream"
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", arg, err)
		}
		out[i] = f
	}
	return out, nil
}

func printView(view *placement.View, err error) error {
	if err != nil {
		return err
	}
	return printJSON(view)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLine(kind string, v placement.View) {
	fmt.Printf("%-8s pos=(%.2f, %.2f, %.2f) az=%d el=%d ctx=%q id=%q linkable=%v active=%v\n",
		kind,
		v.Position[0], v.Position[1], v.Position[2],
		v.Azimuth.Signed, v.Elevation.Signed,
		v.Context, v.Identity,
		v.Linkable, v.Active,
	)
}
