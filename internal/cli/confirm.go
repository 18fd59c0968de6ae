package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
)

// PromptConfirmer asks on a terminal whether a failed edit is rolled back.
// Anything but "y" or "yes" keeps the change.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *PromptConfirmer) ConfirmRollback(_ context.Context, err error) ledger.Decision {
	fmt.Fprintf(p.out, "%s %s. Rollback changes? [y/N] ", color.New(color.FgRed).Sprint("Error:"), err)

	line, rerr := p.in.ReadString('\n')
	if rerr != nil && line == "" {
		fmt.Fprintln(p.out)
		return ledger.Keep
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return ledger.Rollback
	default:
		return ledger.Keep
	}
}

// decisionFlags are the --rollback/--keep flags of the edit commands.
type decisionFlags struct {
	rollback bool
	keep     bool
}

// confirmer answers from the flags when one is set and prompts otherwise.
func (f decisionFlags) confirmer(in io.Reader, out io.Writer) ledger.Confirmer {
	switch {
	case f.rollback:
		return ledger.AlwaysRollback
	case f.keep:
		return ledger.NeverRollback
	default:
		return NewPromptConfirmer(in, out)
	}
}
