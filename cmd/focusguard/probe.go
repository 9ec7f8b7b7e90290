package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focusguard/internal/domain"
	"github.com/eliteGoblin/focusd/focusguard/internal/infra"
	"github.com/eliteGoblin/focusd/focusguard/internal/probe"
)

var probeCmd = &cobra.Command{
	Use:   "probe <html-file>",
	Short: "Run the page probe against a saved page",
	Long: `Parses a saved HTML page as if it had been loaded from --url, runs the
page checks (suspicious password fields, phishing look-alikes) and reports
findings to the running monitor. Each --insert appends an HTML fragment
after the page loads and re-runs the checks as a structural change would,
including detection of same-origin cookie scripts. The page is blocked and rewritten when
focus mode is active and its host is on the blocked list.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <url>",
	Short: "Submit a navigation to the monitor's security pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Ask the monitor whether a request to url would be allowed",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var (
	probeURL    string
	probeSubmit bool
	probeRender string
	probeInsert []string
	cookieCount int
)

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "", "URL the page was loaded from (required)")
	probeCmd.Flags().BoolVar(&probeSubmit, "submit", false, "Simulate submitting every form on the page")
	probeCmd.Flags().StringVar(&probeRender, "render", "", "Write the (possibly rewritten) page to this file")
	probeCmd.Flags().StringArrayVar(&probeInsert, "insert", nil,
		"Append markup after load as <selector>=<html>; selector is #id, a tag name, or empty for body (repeatable)")
	_ = probeCmd.MarkFlagRequired("url")

	inspectCmd.Flags().IntVar(&cookieCount, "cookies", -1, "Cookies held for the page's domain (omit to skip the check)")

	rootCmd.AddCommand(probeCmd, inspectCmd, checkCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	page, err := probe.ParsePage(probeURL, f)
	if err != nil {
		return err
	}

	return withStore(func(ctx context.Context, store domain.Store) error {
		logger := createCLILogger(cfg)
		defer logger.Sync()

		messenger := infra.NewHTTPMessenger(monitorAddr(), cliTimeout)
		p := probe.New(page, messenger, store, logger)

		p.Run(ctx)
		for _, entry := range probeInsert {
			selector, markup, ok := strings.Cut(entry, "=")
			if !ok {
				return fmt.Errorf("invalid --insert %q: want <selector>=<html>", entry)
			}
			m, err := page.Insert(selector, markup)
			if err != nil {
				return err
			}
			p.Observe(ctx, m)
		}
		if probeSubmit {
			for _, form := range page.Forms() {
				p.OnSubmit(ctx, form)
			}
		}

		resp, err := p.HandleMessage(ctx, domain.Message{Type: domain.MsgCheckSecurity})
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(resp.Security, "", "  ")
		fmt.Println(string(out))

		resp, err = p.HandleMessage(ctx, domain.Message{Type: domain.MsgCheckFocusMode})
		if err != nil {
			return err
		}
		if resp.Blocked {
			fmt.Println("Page blocked: focus mode is active")
		}

		if probeRender != "" {
			w, err := os.Create(probeRender)
			if err != nil {
				return err
			}
			defer w.Close()
			return page.Render(w)
		}
		return nil
	})
}

func runInspect(cmd *cobra.Command, args []string) error {
	nav := domain.Navigation{URL: args[0]}
	if cookieCount >= 0 {
		n := cookieCount
		nav.CookieCount = &n
	}

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	client := infra.NewMonitorClient(monitorAddr(), cliTimeout)
	accepted, err := client.ReportNavigation(ctx, nav)
	if err != nil {
		return err
	}
	if accepted {
		fmt.Println("Navigation submitted; run 'focusguard alerts' to watch for findings")
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	client := infra.NewMonitorClient(monitorAddr(), cliTimeout)
	decision, err := client.Decide(ctx, domain.RequestDetails{URL: args[0]})
	if err != nil {
		return err
	}
	fmt.Println(decision)
	return nil
}
