package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// exitCodeError ends the process with a specific code and no further output
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitThreat is the process exit code when a scan finds malicious code
const exitThreat = 2

// rootOptions are the persistent flags shared by every command
type rootOptions struct {
	configPath string
	apiURL     string
	ephemeral  bool
	verbose    bool
}

// env bundles what a command needs once configuration is loaded
type env struct {
	cfg      *Config
	app      *App
	settings *Settings
	theme    *Theme
	out      io.Writer
	errOut   io.Writer
}

// newRootCmd builds the command tree
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Terminal client for the Cyber Sentinel code-security engine",
		Long: `sentinel sends source code to the Cyber Sentinel analysis backend and shows
the verdict, the vulnerabilities it found and, on request, a streamed deep
analysis with a suggested fix.

Run without arguments to open the interactive scanner.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()
			return RunTUI(cmd.Context(), e.app, e.settings, e.theme)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("sentinel %s (built %s)\n", Version, BuildDate))

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default: ~/.sentinel/config.yaml)")
	pf.StringVar(&opts.apiURL, "api-url", "", "analysis backend base URL (overrides SENTINEL_API_URL)")
	pf.BoolVar(&opts.ephemeral, "ephemeral", false, "keep history and XP in memory only")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "mirror logs to stderr")

	root.AddCommand(
		newScanCmd(opts),
		newDeepScanCmd(opts),
		newHistoryCmd(opts),
		newReportCmd(opts),
		newBatchCmd(opts),
		newGithubCmd(opts),
		newStatsCmd(opts),
		newTrainCmd(opts),
		newRoastCmd(opts),
		newResetCmd(opts),
		newHealthCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and opens the app
func (o *rootOptions) setup(cmd *cobra.Command, console bool) (*env, error) {
	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.apiURL != "" {
		cfg.APIURL = strings.TrimRight(o.apiURL, "/")
	}
	if o.ephemeral {
		cfg.StorageBackend = StorageMemory
	}

	log, err := NewLogger(cfg, console && o.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	settings, err := LoadSettings(cfg.DataDir)
	if err != nil {
		log.WithError(err).Warn("settings unreadable, using defaults")
	}

	app, err := NewApp(cmd.Context(), cfg, log)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:      cfg,
		app:      app,
		settings: settings,
		theme:    NewTheme(&settings.Theme),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}, nil
}

func (e *env) close() {
	_ = e.app.Close()
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// deepScanOutput is the JSON form of a finished deep scan
type deepScanOutput struct {
	Status  DeepScanStatus `json:"status"`
	Text    string         `json:"text"`
	Message string         `json:"message,omitempty"`
	Fix     string         `json:"fix,omitempty"`
}

// scanOutput is the JSON form of the scan command
type scanOutput struct {
	Result   AnalysisResult  `json:"result"`
	DeepScan *deepScanOutput `json:"deep_scan,omitempty"`
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	var roast, deep, asJSON bool
	var fixOut string

	cmd := &cobra.Command{
		Use:   "scan [file|-]",
		Short: "Scan a file (or stdin) for malicious code",
		Long: `Scan a file, or standard input when the argument is "-" or omitted.

Exit status is 0 for clean code, 2 when a threat is detected and 1 on error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args, roast, deep || fixOut != "", asJSON, fixOut)
		},
	}
	cmd.Flags().BoolVar(&roast, "roast", false, "ask for a roast instead of a polite verdict")
	cmd.Flags().BoolVar(&deep, "deep", false, "stream a deep analysis after the verdict")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&fixOut, "write-fix", "", "write the suggested fix to this file (implies --deep)")
	return cmd
}

func newDeepScanCmd(opts *rootOptions) *cobra.Command {
	var roast, asJSON bool
	var fixOut string

	cmd := &cobra.Command{
		Use:   "deep-scan [file|-]",
		Short: "Scan a file and stream a deep analysis with a suggested fix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, args, roast, true, asJSON, fixOut)
		},
	}
	cmd.Flags().BoolVar(&roast, "roast", false, "ask for a roast instead of a polite verdict")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().StringVar(&fixOut, "write-fix", "", "write the suggested fix to this file")
	return cmd
}

func runScan(cmd *cobra.Command, opts *rootOptions, args []string, roast, deep, asJSON bool, fixOut string) error {
	e, err := opts.setup(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	code, err := readSource(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session := e.app.NewSession()

	spin := NewSpinner(e.errOut, "Analyzing...", e.theme)
	spin.Start()
	result, err := session.Analyze(ctx, code, roast)
	if err != nil {
		spin.Fail("Scan failed")
	} else {
		spin.Success("Scan complete")
	}
	if err != nil {
		if asJSON {
			_ = e.printJSON(scanOutput{Result: result})
		}
		return err
	}

	out := scanOutput{Result: result}
	if !asJSON {
		_, _ = fmt.Fprint(e.out, FormatResult(result, e.theme))
		_, _ = fmt.Fprintf(e.out, "%s %d XP · %s\n", e.theme.Accent("+"), e.app.Game.XP(), e.app.Game.Level())
	}

	if deep {
		final, err := streamDeepScan(ctx, e, session, code, !asJSON)
		if err != nil {
			return err
		}
		do := &deepScanOutput{Status: final.Status, Text: final.Text, Message: final.Message}
		if fix, ok := final.Fix(); ok {
			do.Fix = fix
			if fixOut != "" {
				if err := saveToFile(fixOut, fix+"\n"); err != nil {
					return fmt.Errorf("failed to write fix: %w", err)
				}
				if !asJSON {
					_, _ = fmt.Fprintf(e.out, "%s fix written to %s\n", e.theme.Success("✓"), fixOut)
				}
			}
		} else if fixOut != "" && !asJSON {
			_, _ = fmt.Fprintln(e.errOut, e.theme.Warning("The analyzer did not suggest a fix."))
		}
		out.DeepScan = do
	}

	if asJSON {
		if err := e.printJSON(out); err != nil {
			return err
		}
	}
	if out.DeepScan != nil && out.DeepScan.Status == DeepScanError {
		return &UserError{Kind: ErrStreamProtocol, Message: "Deep scan failed: " + deepScanFailure(*out.DeepScan)}
	}
	if result.Status == StatusMalicious {
		return &exitCodeError{code: exitThreat}
	}
	return nil
}

func deepScanFailure(d deepScanOutput) string {
	if d.Message != "" {
		return d.Message
	}
	return d.Text
}

// streamDeepScan runs a deep scan, echoing tokens to stdout as they arrive when live is set
func streamDeepScan(ctx context.Context, e *env, session *Session, code string, live bool) (DeepScanState, error) {
	printed := 0
	var spin *Spinner
	if live {
		_, _ = fmt.Fprintf(e.out, "\n%s\n\n", e.theme.Accent("── Deep scan ──"))
		session.Deep.OnUpdate(func(st DeepScanState) {
			if st.Status != DeepScanScanning || len(st.Text) <= printed {
				return
			}
			_, _ = io.WriteString(e.out, st.Text[printed:])
			printed = len(st.Text)
		})
	} else {
		spin = NewSpinner(e.errOut, "Deep scanning...", e.theme)
		session.Deep.OnUpdate(func(st DeepScanState) {
			spin.Progress(utf8.RuneCountInString(st.Text), "chars")
		})
		spin.Start()
	}

	run, err := session.DeepScan(ctx)
	if err != nil {
		if spin != nil {
			spin.Stop()
		}
		return DeepScanState{}, err
	}
	final := run.Wait()
	session.Deep.OnUpdate(nil)

	if !live {
		if final.Status == DeepScanDone {
			spin.Success("Deep scan complete")
		} else {
			spin.Fail("Deep scan failed")
		}
		return final, nil
	}
	if final.Status == DeepScanError {
		_, _ = fmt.Fprintf(e.out, "\n%s\n", e.theme.Error("✗ "+deepScanFailure(deepScanOutput{Text: final.Text, Message: final.Message})))
		return final, nil
	}
	if len(final.Text) > printed {
		_, _ = io.WriteString(e.out, final.Text[printed:])
	}
	_, _ = fmt.Fprintln(e.out)
	if fix, ok := final.Fix(); ok {
		_, _ = fmt.Fprintf(e.out, "\n%s\n", e.theme.Accent("── Suggested change ──"))
		_, _ = fmt.Fprint(e.out, FormatDiff(FixDiff(code, fix), e.theme))
	}
	return final, nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show or clear past scans",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			items := e.app.History.Items()
			if asJSON {
				return e.printJSON(items)
			}
			_, _ = fmt.Fprint(e.out, FormatHistory(items, e.theme))
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print the history as JSON")

	show := &cobra.Command{
		Use:   "show <id|index>",
		Short: "Show one scan including its full code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			item, ok := e.app.History.Find(args[0])
			if !ok {
				return fmt.Errorf("no history entry %q", args[0])
			}
			_, _ = fmt.Fprint(e.out, FormatHistoryItem(item, e.theme))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.app.History.Clear(); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			_, _ = fmt.Fprintln(e.out, e.theme.Success("History cleared."))
			return nil
		},
	}

	cmd.AddCommand(list, show, clearCmd)
	return cmd
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var outPath, fromHistory string

	cmd := &cobra.Command{
		Use:   "report [file|-]",
		Short: "Scan a file and download the PDF audit report",
		Long: `Scan a file and download the PDF audit report for the verdict.
With --history the report is generated for a recorded scan instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			var code string
			var result AnalysisResult
			if fromHistory != "" {
				item, ok := e.app.History.Find(fromHistory)
				if !ok {
					return fmt.Errorf("no history entry %q", fromHistory)
				}
				code, result = item.FullCode, item.Result()
			} else {
				path := ""
				if len(args) == 1 {
					path = args[0]
				}
				if code, err = readSource(path, cmd.InOrStdin()); err != nil {
					return err
				}
				if result, err = e.app.NewSession().Analyze(ctx, code, false); err != nil {
					return err
				}
			}

			spin := NewSpinner(e.errOut, "Generating report...", e.theme)
			spin.Start()
			written, err := ExportReport(ctx, e.app.Client, code, result, outPath, time.Now())
			if err != nil {
				spin.Fail("Report failed")
				return err
			}
			spin.Success("Report saved to " + written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: Sentinel_Audit_<ms>.pdf)")
	cmd.Flags().StringVar(&fromHistory, "history", "", "report on a recorded scan (id or index)")
	return cmd
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Scan every source file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			spin := NewSpinner(e.errOut, "Collecting files...", e.theme)
			spin.Start()
			files, skipped, err := CollectBatchFiles(ctx, args[0], e.cfg.MaxPayloadChars, e.cfg.BatchConcurrency)
			if err != nil {
				spin.Stop()
				return err
			}
			if len(files) == 0 {
				spin.Stop()
				return fmt.Errorf("no source files found under %s", args[0])
			}

			spin.Update(fmt.Sprintf("Scanning %d files...", len(files)))
			resp, err := e.app.Client.BatchScan(ctx, files)
			if err != nil {
				spin.Fail("Batch scan failed")
				return ErrBackendOffline(e.cfg.APIURL, err)
			}
			spin.Success("Batch scan complete")
			return e.printBatch(resp, skipped, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}

func newGithubCmd(opts *rootOptions) *cobra.Command {
	var token string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "github <repo-url>",
		Short: "Have the backend clone and scan a GitHub repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			if token == "" {
				token = os.Getenv("GITHUB_TOKEN")
			}

			spin := NewSpinner(e.errOut, "Scanning "+args[0]+"...", e.theme)
			spin.Start()
			resp, err := e.app.Client.GithubScan(cmd.Context(), args[0], token)
			if err != nil {
				spin.Fail("GitHub scan failed")
				return ErrBackendOffline(e.cfg.APIURL, err)
			}
			spin.Success("GitHub scan complete")
			return e.printBatch(resp, nil, asJSON)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "GitHub access token for private repositories (default: $GITHUB_TOKEN)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}

func (e *env) printBatch(resp *BatchResponse, skipped []SkippedFile, asJSON bool) error {
	if asJSON {
		return e.printJSON(resp)
	}
	_, _ = fmt.Fprint(e.out, FormatBatch(resp, skipped, e.theme))
	if resp.Summary.Threats > 0 {
		return &exitCodeError{code: exitThreat}
	}
	return nil
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the backend model status and your XP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			g := e.app.Game
			_, _ = fmt.Fprintf(e.out, "Level:        %s\n", e.theme.Accent(string(g.Level())))
			_, _ = fmt.Fprintf(e.out, "XP:           %d\n", g.XP())
			_, _ = fmt.Fprintf(e.out, "Streak:       %d\n", g.Streak())
			_, _ = fmt.Fprintf(e.out, "Roast mode:   %s\n\n", onOff(g.RoastMode()))

			stats, err := e.app.Client.ModelStats(cmd.Context())
			if err != nil {
				_, _ = fmt.Fprintf(e.out, "Status:       %s\n", e.theme.Error("offline"))
				return ErrBackendOffline(e.cfg.APIURL, err)
			}
			_, _ = fmt.Fprint(e.out, FormatModelStats(stats, e.theme))
			return nil
		},
	}
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the backend model and stream its log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			_, _ = fmt.Fprintln(e.out, e.theme.Warning("[INIT] Connecting to training pipeline..."))
			err = RunTraining(cmd.Context(), e.app.Client, func(l TrainLine) {
				_, _ = fmt.Fprintln(e.out, FormatTrainLine(l, e.theme))
			})
			if err != nil {
				_, _ = fmt.Fprintln(e.out, e.theme.Error("[ERROR] Training failed: "+err.Error()))
				return err
			}

			if stats, err := e.app.Client.ModelStats(cmd.Context()); err == nil {
				_, _ = fmt.Fprintln(e.out)
				_, _ = fmt.Fprint(e.out, FormatModelStats(stats, e.theme))
			}
			return nil
		},
	}
}

func newRoastCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "roast [on|off]",
		Short:     "Show or change roast mode",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "on", "true":
					e.app.Game.SetRoastMode(true)
				case "off", "false":
					e.app.Game.SetRoastMode(false)
				default:
					return fmt.Errorf("expected on or off, got %q", args[0])
				}
			}
			_, _ = fmt.Fprintf(e.out, "Roast mode: %s\n", onOff(e.app.Game.RoastMode()))
			return nil
		},
	}
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all locally stored scans, XP and preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to wipe local data without --yes")
			}
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := WipeStorage(e.app.Storage)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(e.out, "Removed %d stored %s.\n", n, plural(n, "key", "keys"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the analysis backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()

			h, err := e.app.Client.Health(cmd.Context())
			if err != nil {
				return ErrBackendOffline(e.cfg.APIURL, err)
			}
			_, _ = fmt.Fprintf(e.out, "%s %s (%s)\n", e.theme.Success("●"), h.Status, h.Message)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and check for updates",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "sentinel %s (built %s)\n", Version, BuildDate)
			_, _ = fmt.Fprintln(out, "Terminal client for the Cyber Sentinel code-security engine")
			PrintUpdateNotice(cmd.Context(), out, NewTheme(&DefaultSettings().Theme))
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// exitCode maps a command error to a process exit status
func exitCode(err error) int {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}
