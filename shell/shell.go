package shell

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/shopspring/decimal"
	"github.com/spirit-labs/opi/errors"
	"github.com/spirit-labs/opi/protocol"
)

const Prompt = "opi> "

const helpText = `commands:
  login                     log the workstation on to the EPS
  logoff                    log the workstation off
  pay <amount> [<txn>]      take a card payment, amount in major units e.g. 12.50
  reconcile                 close the current batch
  diagnosis                 ask the EPS for a diagnosis
  help                      show this help
  quit                      leave the shell`

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	keyStyle     = lipgloss.NewStyle().Faint(true)
)

// POS is the set of operations the shell can drive.
type POS interface {
	Login() (bool, error)
	Logoff() (bool, error)
	Reconcile() (*protocol.ServiceResponse, error)
	Diagnosis() (*protocol.ServiceResponse, error)
	CardPayment(amount decimal.NullDecimal, transactionNumber string) (*protocol.CardServiceResponse, error)
}

type Shell struct {
	pos POS
	out io.Writer
}

func NewShell(pos POS, out io.Writer) *Shell {
	return &Shell{pos: pos, out: out}
}

// Run reads commands until quit, EOF or CTRL-C. Command failures are printed and do not end the shell.
func (s *Shell) Run(historyFile string, vi bool) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 Prompt,
		HistoryFile:            historyFile,
		DisableAutoSaveHistory: true,
		VimMode:                vi,
		Stdout:                 s.out,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		_ = rl.Close()
	}()
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		_ = rl.SaveHistory(line)
		quit, err := s.Execute(line)
		if err != nil {
			s.println(failureStyle.Render("error: " + err.Error()))
		}
		if quit {
			return nil
		}
	}
}

// Execute parses and runs a single command, writing its outcome to the shell output. quit is true for the quit
// command.
func (s *Shell) Execute(line string) (quit bool, err error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return false, err
	}
	switch {
	case cmd.Quit:
		return true, nil
	case cmd.Help:
		s.println(helpText)
	case cmd.Login:
		ok, err := s.pos.Login()
		if err != nil {
			return false, err
		}
		s.println("login " + renderOutcome(ok))
	case cmd.Logoff:
		ok, err := s.pos.Logoff()
		if err != nil {
			return false, err
		}
		s.println("logoff " + renderOutcome(ok))
	case cmd.Reconcile:
		resp, err := s.pos.Reconcile()
		if err != nil {
			return false, err
		}
		s.printService("reconcile", resp)
	case cmd.Diagnosis:
		resp, err := s.pos.Diagnosis()
		if err != nil {
			return false, err
		}
		s.printService("diagnosis", resp)
	case cmd.Pay != nil:
		return false, s.pay(cmd.Pay)
	}
	return false, nil
}

func (s *Shell) pay(cmd *PayCommand) error {
	amount, err := decimal.NewFromString(cmd.Amount)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("invalid amount %q", cmd.Amount))
	}
	resp, err := s.pos.CardPayment(decimal.NewNullDecimal(amount), cmd.Transaction)
	if err != nil {
		return err
	}
	s.println(fmt.Sprintf("payment %s %s", renderOutcome(resp.Success), resp.OverallResult()))
	if resp.Success {
		s.println(renderField("amount", protocol.FormatAmount(resp.Amount)))
	}
	s.printFields(resp.Terminal)
	s.printFields(resp.Tender.Authorization)
	return nil
}

func (s *Shell) printService(name string, resp *protocol.ServiceResponse) {
	s.println(fmt.Sprintf("%s %s %s", name, renderOutcome(resp.Success), resp.OverallResult()))
}

func (s *Shell) printFields(fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.println(renderField(k, fields[k]))
	}
}

func (s *Shell) println(str string) {
	_, _ = fmt.Fprintln(s.out, str)
}

func renderOutcome(ok bool) string {
	if ok {
		return successStyle.Render("OK")
	}
	return failureStyle.Render("FAILED")
}

func renderField(key string, value string) string {
	return "  " + keyStyle.Render(key+":") + " " + value
}
