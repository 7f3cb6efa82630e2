// Unifid - Declarative UniFi Network Configuration
//
// A CLI tool for reconciling a UniFi controller against a desired-state
// file with:
//   - Declarative VLAN segments, firewall rules, and DHCP scopes
//   - Dry-run by default (preview changes, require -x to execute)
//   - Pre-apply controller snapshots
//   - Audit logging of all changes
//
//	unifid validate -f vlans.yaml
//	unifid diff -f vlans.yaml
//	unifid apply -f vlans.yaml        # preview
//	unifid apply -f vlans.yaml -x     # execute
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/unifi-declarative/unifid/pkg/audit"
	"github.com/unifi-declarative/unifid/pkg/cli"
	"github.com/unifi-declarative/unifid/pkg/controller"
	"github.com/unifi-declarative/unifid/pkg/settings"
	"github.com/unifi-declarative/unifid/pkg/util"
	"github.com/unifi-declarative/unifid/pkg/version"
)

// Exit codes, stable for scripting.
const (
	exitValidation = 2
	exitPlanning   = 3
	exitPartial    = 4
)

var (
	// Global context flags
	controllerURL string // --controller
	siteName      string // --site
	username      string // -u, --username
	configPath    string // -f, --config

	// Global option flags
	insecure    bool
	jumpHost    string
	executeMode bool
	verbose     bool
	jsonOutput  bool

	// Global state
	userSettings *settings.Settings
)

// errPartialApply marks a run where some operations failed or were
// skipped. Carried up so main can pick the exit code.
var errPartialApply = errors.New("apply incomplete")

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, util.ErrValidationFailed):
		return exitValidation
	case errors.Is(err, util.ErrPlanningFailed):
		return exitPlanning
	case errors.Is(err, errPartialApply):
		return exitPartial
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:               "unifid",
	Short:             "Declarative UniFi Network Configuration",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Unifid reconciles a UniFi controller against a desired-state file.

The desired state declares VLAN segments, DHCP scopes, and firewall
rules. Unifid validates the file, fetches live controller state, and
computes the minimal ordered set of changes. Write commands preview
changes by default — use -x to execute.

  unifid apply -f vlans.yaml --controller https://gateway:8443 -x`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrHelp(cmd) {
			return nil
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		// Apply defaults from settings
		if controllerURL == "" {
			controllerURL = userSettings.Controller
		}
		if siteName == "" {
			siteName = userSettings.GetSite()
		}
		if username == "" {
			username = userSettings.Username
		}
		if configPath == "" {
			configPath = userSettings.ConfigPath
		}

		// Quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		initAuditLogger()
		return nil
	},
}

func initAuditLogger() {
	if userSettings.AuditRedis != "" {
		logger, err := audit.NewRedisLogger(audit.RedisOptions{
			Addr:      userSettings.AuditRedis,
			MaxEvents: 10000,
		})
		if err == nil {
			audit.SetDefaultLogger(logger)
			return
		}
		util.Warnf("Could not reach audit redis, falling back to file: %v", err)
	}

	logger, err := audit.NewFileLogger(userSettings.GetAuditLog(), audit.RotationConfig{
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxBackups: 10,
	})
	if err != nil {
		util.Warnf("Could not initialize audit logging: %v", err)
		return
	}
	audit.SetDefaultLogger(logger)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controllerURL, "controller", "", "Controller base URL (e.g. https://gateway:8443)")
	rootCmd.PersistentFlags().StringVar(&siteName, "site", "", "Controller site (default \"default\")")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "Controller username")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "Desired-state file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&insecure, "insecure", "k", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&jumpHost, "jump-host", "", "SSH jump host for reaching the controller (user@host[:port])")

	applyCmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Execute changes (default is dry-run)")

	for _, cmd := range []*cobra.Command{diffCmd, auditListCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	}

	rootCmd.AddCommand(validateCmd, diffCmd, applyCmd, auditCmd, settingsCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("unifid dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("unifid %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

// requireConfigPath ensures a desired-state file was given via -f or settings.
func requireConfigPath() (string, error) {
	if configPath == "" {
		return "", fmt.Errorf("desired-state file required: use -f <file> or 'unifid settings set config_path <file>'")
	}
	return configPath, nil
}

// buildClient constructs the controller client from flags and settings,
// optionally routed through an SSH jump host, and wrapped with the
// retry policy.
func buildClient() (controller.Client, func(), error) {
	if controllerURL == "" {
		return nil, nil, fmt.Errorf("controller URL required: use --controller or 'unifid settings set controller <url>'")
	}
	if username == "" {
		return nil, nil, fmt.Errorf("controller username required: use -u or 'unifid settings set username <name>'")
	}

	password, err := resolvePassword()
	if err != nil {
		return nil, nil, err
	}

	baseURL := controllerURL
	skipVerify := insecure
	cleanup := func() {}

	if jumpHost != "" {
		tunnel, remapped, err := openTunnel(baseURL)
		if err != nil {
			return nil, nil, err
		}
		baseURL = remapped
		// Certificate is issued for the controller host, not the local
		// tunnel endpoint.
		skipVerify = true
		cleanup = func() { tunnel.Close() }
	}

	client := controller.NewHTTPClient(controller.Options{
		BaseURL:       baseURL,
		Site:          siteName,
		Username:      username,
		Password:      password,
		SkipTLSVerify: skipVerify,
	})

	return controller.WithRetry(client, controller.DefaultRetryPolicy), cleanup, nil
}

// resolvePassword reads the controller password from UNIFID_PASSWORD or
// prompts on the terminal.
func resolvePassword() (string, error) {
	if password := os.Getenv("UNIFID_PASSWORD"); password != "" {
		return password, nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", username, controllerURL)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

// openTunnel forwards the controller port through the jump host and
// returns the rewritten base URL pointing at the local listener.
func openTunnel(baseURL string) (*controller.Tunnel, string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing controller URL: %w", err)
	}
	remote := parsed.Host
	if parsed.Port() == "" {
		remote += ":443"
	}

	user := os.Getenv("USER")
	host := jumpHost
	if at := strings.Index(jumpHost, "@"); at > 0 {
		user = jumpHost[:at]
		host = jumpHost[at+1:]
	}
	if !strings.Contains(host, ":") {
		host += ":22"
	}

	sshPassword := os.Getenv("UNIFID_SSH_PASSWORD")
	tunnel, err := controller.NewTunnel(host, user, sshPassword, remote)
	if err != nil {
		return nil, "", fmt.Errorf("opening tunnel via %s: %w", host, err)
	}

	parsed.Host = tunnel.LocalAddr()
	return tunnel, parsed.String(), nil
}

// isSettingsOrHelp checks whether cmd (or any ancestor) is a settings,
// help, or version command.
func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// Color helpers — delegate to pkg/cli
func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }
func bold(s string) string   { return cli.Bold(s) }
