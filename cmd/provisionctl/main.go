// Command provisionctl drives the manual override endpoints of the provisioning API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"provisioner/internal/config"
	"provisioner/internal/domain"
	"provisioner/internal/provisioning"
)

func main() {
	cfg := config.LoadCLI()
	client := &apiClient{
		BaseURL: cfg.APIURL,
		Token:   cfg.OperatorToken,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
	}
	if err := newRootCmd(client).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(c *apiClient) *cobra.Command {
	root := &cobra.Command{
		Use:           "provisionctl",
		Short:         "Operate customer orders: inspect, provision, verify and move through activation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.BaseURL, "api", c.BaseURL, "provisioning API base URL")
	root.PersistentFlags().StringVar(&c.Token, "token", c.Token, "operator bearer token")

	root.AddCommand(
		systemCmd(c),
		ordersCmd(c),
		configureAgentCmd(c),
		purchaseNumberCmd(c),
		attachNumberCmd(c),
		simplePost(c, "verify", "Re-run the setup checks for an order", "/verify"),
		autoSetupCmd(c),
		simplePost(c, "activate", "Send activation instructions and wait for forwarding", "/activate"),
		simplePost(c, "go-live", "Mark a verified order with confirmed forwarding active", "/go-live"),
		simplePost(c, "suspend", "Suspend an order", "/suspend"),
		simplePost(c, "resume", "Resume a suspended order", "/resume"),
	)
	return root
}

func systemCmd(c *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show which integrations are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.get(cmd.Context(), "/system", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func ordersCmd(c *apiClient) *cobra.Command {
	orders := &cobra.Command{Use: "orders", Short: "List and inspect orders"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetStringSlice("status")
			asJSON, _ := cmd.Flags().GetBool("json")
			q := url.Values{}
			if len(status) > 0 {
				q.Set("status", strings.Join(status, ","))
			}
			raw, err := c.get(cmd.Context(), "/orders", q)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}
			var list []domain.Order
			if err := json.Unmarshal(raw, &list); err != nil {
				return fmt.Errorf("decode orders: %w", err)
			}
			return printOrders(cmd.OutOrStdout(), list)
		},
	}
	list.Flags().StringSliceP("status", "s", nil, "filter by status (pending_setup, setup_in_progress, ...)")
	list.Flags().BoolP("json", "j", false, "print raw JSON")

	get := &cobra.Command{
		Use:   "get ORDER_ID",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.get(cmd.Context(), "/orders/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}

	orders.AddCommand(list, get)
	return orders
}

func configureAgentCmd(c *apiClient) *cobra.Command {
	var opts provisioning.Options
	var mode string
	cmd := &cobra.Command{
		Use:   "configure-agent ORDER_ID",
		Short: "Create or update the voice agent for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ResponseMode = domain.ResponseMode(mode)
			raw, err := c.post(cmd.Context(), orderPath(args[0], "/agent"), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&opts.Prompt, "prompt", "", "system prompt override")
	cmd.Flags().StringVar(&opts.FirstMessage, "first-message", "", "greeting override")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "voice id or catalog name")
	cmd.Flags().StringVar(&mode, "response-mode", "", "immediate or missed_call_only")
	return cmd
}

func purchaseNumberCmd(c *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase-number ORDER_ID",
		Short: "Buy a carrier number for an order and link it to the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.post(cmd.Context(), orderPath(args[0], "/number/purchase"), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func attachNumberCmd(c *apiClient) *cobra.Command {
	var sid string
	cmd := &cobra.Command{
		Use:   "attach-number ORDER_ID PHONE_NUMBER",
		Short: "Record a number obtained outside the carrier integration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"phone_number": args[1]}
			if sid != "" {
				body["sid"] = sid
			}
			raw, err := c.post(cmd.Context(), orderPath(args[0], "/number"), body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&sid, "sid", "", "carrier SID, when known")
	return cmd
}

func autoSetupCmd(c *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-setup ORDER_ID",
		Short: "Run (or resume) full provisioning for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.post(cmd.Context(), orderPath(args[0], "/auto-setup"), nil)
			if err != nil {
				// partial progress is in the body
				if len(raw) > 0 {
					_ = printJSON(cmd.OutOrStdout(), raw)
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func simplePost(c *apiClient, use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ORDER_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := c.post(cmd.Context(), orderPath(args[0], suffix), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func orderPath(id, suffix string) string {
	return "/orders/" + url.PathEscape(id) + suffix
}

func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := w.Write(raw)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func printOrders(w io.Writer, list []domain.Order) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCOMPANY\tPLAN\tNUMBER\tAGENT\tVERIFIED")
	for _, o := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			o.ID, o.Status, o.CompanyName, o.Plan, dash(o.PhoneNumber), dash(o.AgentID), o.Verification.AllGreen())
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
