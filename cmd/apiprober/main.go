// Command apiprober passively fingerprints an HTTP API's surface: routes,
// methods, parameters, and response shapes, without ever sending a
// request a server wouldn't receive from ordinary traffic.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lukisch/apiprober/internal/config"
	"github.com/lukisch/apiprober/internal/export"
	"github.com/lukisch/apiprober/internal/logger"
	"github.com/lukisch/apiprober/internal/metrics"
	"github.com/lukisch/apiprober/internal/orchestrator"
	"github.com/lukisch/apiprober/internal/store"
	"github.com/spf13/cobra"
)

const version = export.Version

var (
	configPath  string
	metricsAddr string
	log         *logger.Logger
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "apiprober",
		Short:   "Passive API discovery and fingerprinting",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log = logger.NewDefault()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")

	root.AddCommand(
		newProbeCmd(),
		newResumeCmd(),
		newListCmd(),
		newStatusCmd(),
		newExportCmd(),
		newConfigCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.LogFile != "" {
		log = logger.New(logger.Config{Level: logger.InfoLevel, LogFile: cfg.LogFile})
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	return store.Open(cfg.DBPath)
}

func newProbeCmd() *cobra.Command {
	var (
		depth           int
		delayMS         int
		maxRequests     int
		authType        string
		authValue       string
		testAllMethods  bool
	)
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Probe a service's API surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if depth > 0 {
				cfg.MaxDepth = depth
			}
			if delayMS > 0 {
				cfg.DelayMS = delayMS
			}
			if maxRequests > 0 {
				cfg.MaxRequests = maxRequests
			}
			if authType != "" {
				cfg.Auth = config.AuthConfig{Type: authType, Value: authValue}
			}
			if testAllMethods {
				cfg.SkipDestructive = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			m := metrics.New()
			ctx, cancel := signalContext()
			defer cancel()
			addr := metricsAddr
			if addr == "" {
				addr = cfg.MetricsAddr
			}
			if addr != "" {
				go m.Serve(ctx, addr)
			}

			o := orchestrator.New(cfg, st, log, m)
			summary, err := o.Probe(ctx, args[0])
			if err != nil {
				return err
			}
			printSummary(summary)
			if summary.Error != "" {
				return fmt.Errorf("probe failed: %s", summary.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "override max response-driven follow depth")
	cmd.Flags().IntVar(&delayMS, "delay-ms", 0, "override minimum delay between requests, in milliseconds")
	cmd.Flags().IntVar(&maxRequests, "max-requests", 0, "override the total request budget for this run")
	cmd.Flags().StringVar(&authType, "auth-type", "", "auth type: none, bearer, api_key, basic")
	cmd.Flags().StringVar(&authValue, "auth-value", "", "auth credential value")
	cmd.Flags().BoolVar(&testAllMethods, "test-all-methods", false, "test destructive methods too (POST/PUT/PATCH/DELETE)")
	return cmd
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <service>",
		Short: "Resume a previously-started probe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signalContext()
			defer cancel()

			o := orchestrator.New(cfg, st, log, nil)
			summary, err := o.Resume(ctx, args[0])
			if err != nil {
				return err
			}
			printSummary(summary)
			if summary.Error != "" {
				return fmt.Errorf("probe failed: %s", summary.Error)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every probed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			services, err := st.ListServices()
			if err != nil {
				return err
			}
			fmt.Printf("%-24s %-40s %-10s %s\n", "Name", "Base URL", "Endpoints", "Last probed")
			for _, svc := range services {
				stats, _ := st.GetServiceStats(svc.ID)
				lastProbed := svc.LastProbed.Format("2006-01-02 15:04")
				if svc.LastProbed.IsZero() {
					lastProbed = "never"
				}
				fmt.Printf("%-24s %-40s %-10d %s\n", svc.Name, svc.BaseURL, stats.EndpointCount, lastProbed)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show details and stats for a probed service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := st.GetServiceByName(args[0])
			if err != nil {
				return err
			}
			if svc == nil {
				fmt.Printf("service %q not found\n", args[0])
				return errExitStatus
			}

			stats, err := st.GetServiceStats(svc.ID)
			if err != nil {
				return err
			}
			endpoints, err := st.ListEndpointsForService(svc.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Service: %s\n", svc.Name)
			fmt.Printf("Base URL: %s\n", svc.BaseURL)
			fmt.Printf("Server: %s\n", svc.ServerHeader)
			fmt.Printf("Endpoints: %d  Responses: %d  Parameters: %d\n", stats.EndpointCount, stats.ResponseCount, stats.ParameterCount)
			fmt.Println()
			for _, ep := range endpoints {
				auth := "no"
				if ep.AuthRequired {
					auth = "yes (" + ep.AuthTypeHint + ")"
				}
				fmt.Printf("  %-40s methods=%-24v auth=%s\n", ep.Path, ep.Methods, auth)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
		jqExpr string
	)
	cmd := &cobra.Command{
		Use:   "export <service>",
		Short: "Export a service's discovered surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			bundle, err := export.LoadBundle(st, args[0], time.Now())
			if err != nil {
				return err
			}

			if output == "" {
				if err := os.MkdirAll(cfg.ExportDir, 0755); err != nil {
					return err
				}
				output = filepath.Join(cfg.ExportDir, fmt.Sprintf("%s.%s", args[0], extensionFor(format)))
			}

			switch format {
			case "json":
				if jqExpr != "" {
					doc := export.BuildDocument(bundle)
					out, err := export.ApplyJQFilter(doc, jqExpr)
					if err != nil {
						return err
					}
					return os.WriteFile(output, out, 0644)
				}
				return export.WriteJSON(bundle, output)
			case "md":
				return export.WriteMarkdown(bundle, output)
			case "postman":
				return export.WritePostman(bundle, output)
			case "pdf":
				mdPath, err := export.WritePDFStub(bundle, output)
				if err != nil {
					return err
				}
				fmt.Printf("PDF rendering is out of scope; wrote %s instead. Convert it with an external tool.\n", mdPath)
				return nil
			default:
				return fmt.Errorf("unknown export format %q (want json, md, pdf, postman)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "export format: json, md, pdf, postman")
	cmd.Flags().StringVar(&output, "output", "", "output file path (default: <export_dir>/<service>.<ext>)")
	cmd.Flags().StringVar(&jqExpr, "jq", "", "jq filter applied to --format json output")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var (
		show bool
		set  []string
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or mutate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// "--set KEY VALUE" leaves VALUE as a positional argument.
			if len(set) == 1 && len(args) == 1 {
				set = append(set, args[0])
			}
			if len(set) == 2 {
				if err := cfg.Set(set[0], set[1]); err != nil {
					return err
				}
				path := configPath
				if path == "" {
					path = "config.yaml"
				}
				if err := cfg.SaveToFile(path); err != nil {
					return err
				}
				fmt.Printf("set %s = %s\n", set[0], set[1])
				return nil
			}
			if show || len(set) == 0 {
				m, err := cfg.AsMap()
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the resolved configuration as JSON")
	cmd.Flags().StringSliceVar(&set, "set", nil, "set KEY VALUE (dot-notation key, e.g. auth.type)")
	return cmd
}

func extensionFor(format string) string {
	switch format {
	case "json":
		return "json"
	case "postman":
		return "postman_collection.json"
	case "pdf":
		return "pdf"
	default:
		return "md"
	}
}

func printSummary(s *orchestrator.Summary) {
	data, _ := json.MarshalIndent(s, "", "  ")
	fmt.Println(string(data))
}

var errExitStatus = fmt.Errorf("not found")

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
