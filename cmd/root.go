// Package cmd wires up the CLI flags and dispatches to the connect core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"httplink/config"
	"httplink/internal/core"
	hlerr "httplink/internal/errors"
	"httplink/internal/metrics"
	"httplink/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X httplink/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stderr receives usage, version and --stats output.
var stderr io.Writer = os.Stderr //nolint:gochecknoglobals

// flagKeys maps every flag that feeds the configuration to its koanf
// key.  Flags absent from this table only steer the CLI itself.
var flagKeys = map[string]string{ //nolint:gochecknoglobals
	"secure":            "secure",
	"timeout":           "timeout",
	"local-port":        "localport",
	"no-dns":            "nodns",
	"probe":             "probe",
	"verbose":           "verbose",
	"cert":              "tls.cert",
	"key":               "tls.key",
	"ca":                "tls.ca",
	"server-name":       "tls.servername",
	"tls-min":           "tls.minversion",
	"handshake-timeout": "tls.handshaketimeout",
	"max-buffers":       "buffers.max",
	"tunnel":            "tunnel.spec",
	"ssh-key":           "tunnel.key",
	"ssh-password":      "tunnel.password",
	"ssh-agent":         "tunnel.agent",
	"strict-hostkey":    "tunnel.stricthostkey",
	"known-hosts":       "tunnel.knownhosts",
	"stats":             "metrics.stats",
	"metrics-file":      "metrics.file",
}

// Execute parses args and runs one connect attempt.
func Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("httplink", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolP("secure", "s", false, "Use TLS")
	fs.IntP("timeout", "w", 0, "Connect timeout in seconds")
	fs.IntP("local-port", "p", 0, "Local source port")
	fs.BoolP("no-dns", "n", false, "Numeric-only, no DNS resolution")
	fs.Int("max-buffers", config.DefaultMaxBuffers, "Maximum outstanding connection buffers (0 = unbounded)")

	// ── TLS ──────────────────────────────────────────────────────
	fs.String("cert", "", "Client certificate PEM (may also hold the key)")
	fs.String("key", "", "Client private key PEM (default: read from --cert)")
	fs.String("ca", "", "Trust anchor PEM file or directory (default: accept any server certificate)")
	fs.String("server-name", "", "Server name for SNI and verification (default: host)")
	fs.String("tls-min", config.DefaultMinTLSVersion, "Minimum TLS version (1.0-1.3)")
	fs.Duration("handshake-timeout", config.DefaultHandshakeTimeout, "TLS handshake timeout")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringP("tunnel", "T", "", "SSH tunnel via [user@]host[:port]")
	fs.String("ssh-key", "", "SSH private key file")
	fs.Bool("ssh-password", false, "Prompt for SSH password")
	fs.Bool("ssh-agent", false, "Use SSH agent")
	fs.Bool("strict-hostkey", false, "Verify SSH host keys")
	fs.String("known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.BoolP("probe", "z", false, "Report connection parameters and exit")
	fs.Bool("stats", false, "Print run statistics as JSON to stderr")
	fs.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	fs.CountP("verbose", "v", "Increase verbosity (repeatable)")

	var dryRun, showVersion, showHelp bool
	fs.String("config", "", "YAML configuration file (default: $HTTPLINK_CONFIG)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stderr, "httplink %s\n", version)
		return nil
	}

	overrides, err := flagOverrides(fs)
	if err != nil {
		return err
	}
	if err := parsePositional(overrides, fs.Args()); err != nil {
		return err
	}

	configPath, _ := fs.GetString("config")
	if configPath == "" {
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	// ── load + validate ──────────────────────────────────────────
	opts := []config.Option{config.WithOverrides(overrides)}
	if configPath != "" {
		opts = append(opts, config.WithConfigFile(configPath))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if dryRun {
		logger.Info("configuration valid: %s (secure=%t)", util.FormatAddr(cfg.Host, cfg.Port), cfg.Secure)
		return nil
	}

	// ── build + run ──────────────────────────────────────────────
	m := metrics.New()
	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}

	runErr := mode.Run(ctx)
	if runErr != nil && hlerr.StageOf(runErr) == 0 {
		// Failed connect attempts are already counted by the connector.
		m.RecordError(runErr.Error())
	}

	if cfg.Metrics.Stats {
		fmt.Fprintln(stderr, m.JSON())
	}
	if cfg.Metrics.File != "" {
		if err := m.WriteTextfile(cfg.Metrics.File); err != nil {
			logger.Warn("cannot write metrics to %s: %v", cfg.Metrics.File, err)
		}
	}
	return runErr
}

// ── helpers ──────────────────────────────────────────────────────────

// flagOverrides collects the flags the user actually set, keyed by
// their configuration key.  Unset flags never shadow the file or the
// environment.
func flagOverrides(fs *flag.FlagSet) (map[string]any, error) {
	out := make(map[string]any)
	var err error
	fs.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		var v any
		switch f.Value.Type() {
		case "bool":
			v, err = fs.GetBool(f.Name)
		case "count":
			v, err = fs.GetCount(f.Name)
		case "duration":
			v, err = fs.GetDuration(f.Name)
		case "int":
			var n int
			n, err = fs.GetInt(f.Name)
			v = n
			if f.Name == "timeout" {
				v = time.Duration(n) * time.Second
			}
		default:
			v = f.Value.String()
		}
		out[key] = v
	})
	return out, err
}

// parsePositional reads "host port" into the overrides.
func parsePositional(overrides map[string]any, remaining []string) error {
	switch len(remaining) {
	case 0:
		return fmt.Errorf("hostname required (use --help for usage)")
	case 1:
		return fmt.Errorf("port required")
	case 2:
	default:
		return fmt.Errorf("too many arguments: expected host and port")
	}

	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	overrides["host"] = remaining[0]
	overrides["port"] = port
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `httplink – HTTP(S) client connection tool v%s

Opens one outbound HTTP or HTTPS connection and relays stdin/stdout
over it, or reports the negotiated parameters with -z.

Usage:
  httplink [options] <host> <port>            Plain TCP
  httplink -s [options] <host> <port>         TLS
  httplink -T user@gateway <host> <port>      Through an SSH gateway

Options:
`, version)
	fs.SetOutput(stderr)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  printf 'GET / HTTP/1.0\r\n\r\n' | httplink example.com 80
  httplink -sz example.com 443                        Show TLS parameters
  httplink -s --ca ca.pem --cert me.pem api.internal 8443
  httplink -T admin@bastion -s intranet 443           Tunnel + TLS

Configuration is also read from $HTTPLINK_CONFIG (YAML) and
HTTPLINK_* environment variables; flags take precedence.
`)
}
