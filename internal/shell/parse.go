package shell

import "strings"

const backgroundSuffix = " &"

// ParseLine splits a command line into space separated tokens. A trailing
// " &" marks the command as a background command; it's removed from the
// tokens and kept on the returned command line.
func ParseLine(line string) (tokens []string, background bool, commandLine string) {
	commandLine = strings.TrimSpace(line)

	if rest, ok := strings.CutSuffix(commandLine, backgroundSuffix); ok {
		background = true
		commandLine = strings.TrimSpace(rest) + backgroundSuffix
		tokens = strings.Fields(rest)

		return tokens, background, commandLine
	}

	return strings.Fields(commandLine), false, commandLine
}
