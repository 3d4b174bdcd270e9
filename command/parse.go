package command

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidCommand covers unknown keywords, wrong argument counts and
// malformed numbers.
var ErrInvalidCommand = errors.New("invalid command or arguments")

type Verb string

const (
	Buy       Verb = "BUY"
	Sell      Verb = "SELL"
	Portfolio Verb = "PORTFOLIO"
	Available Verb = "AVAILABLE"
	Subscribe Verb = "SUBSCRIBE"
	Help      Verb = "HELP"
	Quit      Verb = "QUIT"
)

// Command is one parsed line.
type Command struct {
	Verb   Verb
	Symbol string
	// Quantity is set for BUY and SELL. It may be zero or negative; range
	// checks belong to the trade itself.
	Quantity int
	// Threshold is set for SUBSCRIBE. HasThreshold is false when the
	// line gave none.
	Threshold    float64
	HasThreshold bool
}

// Parse reads up to three whitespace separated tokens. Anything after
// the third is ignored. An empty line yields ok == false and no error.
func Parse(line string) (cmd Command, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false, nil
	}
	if len(fields) > 3 {
		fields = fields[:3]
	}
	n := len(fields)

	verb := Verb(strings.ToUpper(fields[0]))
	switch verb {
	case Buy, Sell:
		if n != 3 {
			return Command{}, true, ErrInvalidCommand
		}
		qty, err := strconv.Atoi(fields[2])
		if err != nil {
			return Command{}, true, ErrInvalidCommand
		}
		return Command{Verb: verb, Symbol: strings.ToUpper(fields[1]), Quantity: qty}, true, nil

	case Portfolio, Available, Help, Quit:
		if n != 1 {
			return Command{}, true, ErrInvalidCommand
		}
		return Command{Verb: verb}, true, nil

	case Subscribe:
		if n < 2 {
			return Command{}, true, ErrInvalidCommand
		}
		cmd := Command{Verb: verb, Symbol: strings.ToUpper(fields[1])}
		if n == 3 {
			t, err := strconv.ParseFloat(fields[2], 64)
			if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
				return Command{}, true, ErrInvalidCommand
			}
			cmd.Threshold = t
			cmd.HasThreshold = true
		}
		return cmd, true, nil
	}

	return Command{}, true, ErrInvalidCommand
}
