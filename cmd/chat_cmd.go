package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"leadwidget/internal/entities"
	"leadwidget/internal/usecases"
	"leadwidget/internal/widget"
)

// terminalEffects pings the real analytics endpoint and prints URLs instead
// of opening them.
type terminalEffects struct {
	transport *widget.HTTPTransport
	out       io.Writer
}

func (e terminalEffects) Ping(widgetID, eventType string) {
	go e.transport.Ping(widgetID, eventType)
}

func (e terminalEffects) OpenURL(url string) {
	fmt.Fprintf(e.out, "-> abre %s\n", url)
}

func newChatCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "chat <widget-id>",
		Short: "Talk to a widget from the terminal through a running server",
		Long:  "Lines are sent as visitor messages. /cerrar closes the widget, /whatsapp follows the handoff link.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			boot, err := fetchBootstrap(ctx, strings.TrimRight(server, "/"), args[0])
			if err != nil {
				return err
			}
			switch {
			case boot.Suspended:
				return fmt.Errorf("widget %s is suspended", args[0])
			case !boot.Found || boot.Config == nil:
				return fmt.Errorf("widget %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			transport := widget.NewHTTPTransport(boot.Endpoints)
			rt := widget.NewRuntime(*boot.Config, transport, terminalEffects{transport: transport, out: out})
			rt.Open()
			defer rt.Close()

			fmt.Fprintf(out, "== %s ==\n", boot.Config.BusinessName)
			shown := printNew(out, rt, 0)

			in := bufio.NewScanner(cmd.InOrStdin())
			for in.Scan() {
				line := strings.TrimSpace(in.Text())
				switch line {
				case "":
					continue
				case "/cerrar":
					return nil
				case "/whatsapp":
					rt.ClickWhatsApp()
					continue
				}

				rt.Input()
				if err := rt.Send(ctx, line); err != nil {
					fmt.Fprintf(out, "(%v)\n", err)
				}
				shown = printNew(out, rt, shown)
				if rt.State() == widget.StateBlocked {
					return nil
				}
			}
			return in.Err()
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the widget server")
	return cmd
}

func fetchBootstrap(ctx context.Context, server, widgetID string) (usecases.ClientBootstrap, error) {
	var boot usecases.ClientBootstrap
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/widget/"+widgetID+"/config", nil)
	if err != nil {
		return boot, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return boot, fmt.Errorf("fetch widget config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("fetch widget config: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		return boot, fmt.Errorf("decode widget config: %w", err)
	}
	return boot, nil
}

func printNew(out io.Writer, rt *widget.Runtime, from int) int {
	msgs := rt.Messages()
	for _, m := range msgs[from:] {
		switch m.Role {
		case entities.RoleUser:
			continue
		case widget.RoleSystem:
			fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		default:
			fmt.Fprintf(out, "%s\n", m.Content)
		}
		if m.ActionURL != "" {
			fmt.Fprintf(out, "   %s\n", m.ActionURL)
		}
	}
	return len(msgs)
}
