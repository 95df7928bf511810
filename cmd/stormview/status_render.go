package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"stormview/internal/launcher"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 18

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindLabel(kind) + "]"
	if colorize {
		tag = statusKindColor(kind) + tag + ansiReset
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	if message != "" {
		line += " " + message
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

// phaseLabel turns a launcher phase such as "clear_cache" into "Clear Cache".
func phaseLabel(phase launcher.Phase) string {
	return titleCaser.String(strings.ReplaceAll(string(phase), "_", " "))
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// phasePrinter writes launcher progress as status lines.
type phasePrinter struct {
	out      io.Writer
	colorize bool
}

func newPhasePrinter(out io.Writer) *phasePrinter {
	return &phasePrinter{out: out, colorize: shouldColorize(out)}
}

func (p *phasePrinter) Phase(phase launcher.Phase, message string) {
	fmt.Fprintln(p.out, renderStatusLine(phaseLabel(phase), statusInfo, message, p.colorize))
}
