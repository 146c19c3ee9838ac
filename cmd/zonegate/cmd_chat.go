package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"zonegate/internal/dialogue"
	"zonegate/internal/transparency"
	"zonegate/internal/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with zonegate in the terminal",
	Long: `Starts an interactive session. When zonegate asks a question, answer with
the option number. Commands: /new starts a new session, /trace shows the
stages of the last turn, /quit exits.`,
	RunE: runChat,
}

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	replyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f2f2f2")).PaddingLeft(2)
	optionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).PaddingLeft(4)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2a3850")).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	allowedStyles = map[types.Allowed]lipgloss.Style{
		types.AllowedYes:     lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true),
		types.AllowedNo:      lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		types.AllowedUnknown: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true),
	}
)

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r := &repl{dlg: a.router, traces: a.traces, out: cmd.OutOrStdout(), sessionID: uuid.NewString()}
	return r.loop(ctx, cmd.InOrStdin())
}

// turnRunner is the slice of the router the REPL drives.
type turnRunner interface {
	Process(ctx context.Context, sessionID, message string) (*dialogue.Result, error)
	Answer(ctx context.Context, sessionID string, index int) (*dialogue.Result, error)
}

type repl struct {
	dlg       turnRunner
	traces    *transparency.TraceStore
	out       io.Writer
	sessionID string
	pending   bool
	lastTrace string
}

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, mutedStyle.Render("Ask whether a vehicle may enter a zone. /quit to exit."))
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one input line and reports whether the REPL should exit.
func (r *repl) handle(ctx context.Context, line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/new":
		r.sessionID, r.pending = uuid.NewString(), false
		fmt.Fprintln(r.out, mutedStyle.Render("new session "+r.sessionID))
		return false
	case "/trace":
		r.printTrace()
		return false
	}

	var (
		res *dialogue.Result
		err error
	)
	if n, convErr := strconv.Atoi(line); convErr == nil && r.pending {
		// Options are shown 1-based.
		res, err = r.dlg.Answer(ctx, r.sessionID, n-1)
	} else {
		res, err = r.dlg.Process(ctx, r.sessionID, line)
	}
	if err != nil {
		ce := transparency.ClassifyError(err)
		fmt.Fprintln(r.out, errorStyle.Render(ce.Category.Prefix()+" "+ce.Summary))
		fmt.Fprintln(r.out, mutedStyle.Render(err.Error()))
		return false
	}
	r.render(res)
	return false
}

func (r *repl) render(res *dialogue.Result) {
	r.pending = res.PendingQuestion
	r.lastTrace = res.TraceID
	if res.Decision != nil {
		style := allowedStyles[res.Decision.Allowed]
		fmt.Fprintln(r.out, style.Render("  ["+verdictLabel(res.Decision.Allowed)+"] "+string(res.Decision.ReasonCode)))
	}
	for _, fd := range res.FleetDecisions {
		style := allowedStyles[fd.Decision.Allowed]
		fmt.Fprintln(r.out, style.Render(fmt.Sprintf("  [%s] %s", verdictLabel(fd.Decision.Allowed), fd.Plate)))
	}
	fmt.Fprintln(r.out, replyStyle.Render(res.Reply))
	for _, o := range res.Options {
		fmt.Fprintln(r.out, optionStyle.Render(fmt.Sprintf("%d. %s", o.Index+1, o.Label)))
	}
}

func (r *repl) printTrace() {
	if r.traces == nil || r.lastTrace == "" {
		fmt.Fprintln(r.out, mutedStyle.Render("no trace yet"))
		return
	}
	t, ok := r.traces.Get(r.lastTrace)
	if !ok {
		fmt.Fprintln(r.out, mutedStyle.Render("trace expired"))
		return
	}
	fmt.Fprintln(r.out, mutedStyle.Render(t.Summary()))
}

func verdictLabel(a types.Allowed) string {
	switch a {
	case types.AllowedYes:
		return "ALLOWED"
	case types.AllowedNo:
		return "BANNED"
	default:
		return "UNKNOWN"
	}
}
