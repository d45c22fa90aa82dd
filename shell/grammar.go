package shell

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/spirit-labs/opi/errors"
)

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{"Number", `\d+(?:\.\d+)?`},
	{"Ident", `[a-zA-Z_][a-zA-Z0-9_.\-]*`},
	{"String", `"(?:\\"|[^"])*"`},
	{"Whitespace", `[ \t\r\n]+`},
})

// Command is a single line typed at the POS shell.
type Command struct {
	Login     bool        `  @"login"`
	Logoff    bool        `| @"logoff"`
	Pay       *PayCommand `| "pay" @@`
	Reconcile bool        `| @"reconcile"`
	Diagnosis bool        `| @"diagnosis"`
	Help      bool        `| @"help"`
	Quit      bool        `| @("quit" | "exit")`
}

// PayCommand is `pay <amount> [<transaction number>]`.
type PayCommand struct {
	Amount      string `@Number`
	Transaction string `( @Number | @Ident | @String )?`
}

var commandParser = participle.MustBuild[Command](
	participle.Lexer(lex),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.Unquote("String"),
)

func ParseCommand(line string) (*Command, error) {
	cmd, err := commandParser.ParseString("", line)
	if err != nil {
		return nil, errors.NewOpiErrorf(errors.InvalidArgument, "invalid command: %v", err)
	}
	return cmd, nil
}
