// Package colorize highlights instruction listings for the terminal.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Enabled reports whether colour output is allowed. SIGGA_NO_COLOR disables it.
func Enabled() bool {
	return os.Getenv("SIGGA_NO_COLOR") == ""
}

// assemblyLexer picks a lexer for the decoder's syntax: Intel for amd64, ARM
// for arm64, falling back to GAS.
func assemblyLexer(arch string) chroma.Lexer {
	candidates := []string{"gas", "nasm"}
	switch arch {
	case "amd64":
		candidates = []string{"nasm", "gas"}
	case "arm64":
		candidates = []string{"armasm", "gas"}
	}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func listingStyle() *chroma.Style {
	for _, name := range []string{ListingStyleName, "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func terminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Assembly highlights a block of disassembly. On any lexer problem the input is
// returned unchanged.
func Assembly(code, arch string) string {
	if !Enabled() {
		return code
	}
	lexer := assemblyLexer(arch)
	if lexer == nil {
		return code
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := terminalFormatter().Format(&buf, listingStyle(), iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

const (
	grey   = "\033[38;2;79;79;79m"
	green  = "\033[38;2;133;230;128m"
	purple = "\033[38;2;235;194;237m"
	reset  = "\033[0m"
)

// Tokens renders signature tokens: concrete bytes in green, wildcards dimmed.
func Tokens(tokens []string) string {
	if !Enabled() {
		return strings.Join(tokens, " ")
	}
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		if tok == "?" {
			parts[i] = purple + tok + reset
		} else {
			parts[i] = green + tok + reset
		}
	}
	return strings.Join(parts, " ")
}

// ListingLine formats one instruction: address, signature tokens padded to
// tokenWidth visible columns, then the highlighted disassembly.
func ListingLine(addr uint64, tokens []string, text, arch string, tokenWidth int) string {
	address := fmt.Sprintf("%08x", addr)
	if Enabled() {
		address = grey + address + reset
	}
	sig := Tokens(tokens)
	if pad := tokenWidth - VisibleLen(sig); pad > 0 {
		sig += strings.Repeat(" ", pad)
	}
	return fmt.Sprintf("%s  %s  %s", address, sig, Assembly(text, arch))
}

// VisibleLen counts the characters of s outside ANSI escape sequences.
func VisibleLen(s string) int {
	return len([]rune(StripANSI(s)))
}

// StripANSI removes ANSI colour sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}
