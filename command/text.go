package command

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Prompt ends every reply and alert block.
	Prompt = "> "
	// Closing is the last line a session ever receives.
	Closing = "CLOSING_CONNECTION\n"
	// Full is written to a connection refused at capacity.
	Full = "ERROR: Server full. Try again later.\n"
)

const helpText = "\n╔═══════════════════════════════════════╗\n" +
	"║         TRADING COMMANDS              ║\n" +
	"╠═══════════════════════════════════════╣\n" +
	"║ BUY <symbol> <qty>    - Buy stocks   ║\n" +
	"║ SELL <symbol> <qty>   - Sell stocks  ║\n" +
	"║ PORTFOLIO             - View holdings║\n" +
	"║ AVAILABLE             - List stocks  ║\n" +
	"║ SUBSCRIBE <symbol> [t] - Get alerts  ║\n" +
	"║ HELP                  - This help    ║\n" +
	"║ QUIT                  - Exit         ║\n" +
	"╚═══════════════════════════════════════╝\n" +
	"Note: [t] is optional alert threshold (e.g. 1.5)\n"

// Invalid answers a line that does not parse as a command.
const Invalid = "ERROR: Invalid command or arguments. Type HELP.\n"

// Welcome is the banner sent to a newly admitted session, ending in
// the first prompt.
func Welcome(balance float64) string {
	return "\n╔════════════════════════════════════╗\n" +
		"║   STOCK TRADING SYSTEM v3.0       ║\n" +
		"╚════════════════════════════════════╝\n" +
		"💰 Starting balance: $" + Money(balance) + "\n" +
		"Type HELP for commands\n\n" + Prompt
}

// Money formats v with two decimals and thousands separators.
func Money(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

func plus(v float64) string {
	if v >= 0 {
		return "+"
	}
	return ""
}

func errorf(format string, args ...any) string {
	return "ERROR: " + fmt.Sprintf(format, args...) + "\n"
}
