package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
)

// colorsEnabled is cleared when NO_COLOR is set to any value.
var colorsEnabled = os.Getenv("NO_COLOR") == ""

// Swapped out in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(code, text string) string {
	if !colorsEnabled {
		return text
	}
	return code + text + ansiReset
}

func red(text string) string    { return colorize(ansiRed, text) }
func green(text string) string  { return colorize(ansiGreen, text) }
func yellow(text string) string { return colorize(ansiYellow, text) }
func blue(text string) string   { return colorize(ansiBlue, text) }
func cyan(text string) string   { return colorize(ansiCyan, text) }
func bold(text string) string   { return colorize(ansiBold, text) }
func dim(text string) string    { return colorize(ansiDim, text) }

func printSuccess(format string, args ...any) {
	fmt.Fprintln(stdout, green("✓")+" "+fmt.Sprintf(format, args...))
}

func printError(format string, args ...any) {
	fmt.Fprintln(stderr, red("✗")+" "+fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(stdout, yellow("⚠")+" "+fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(stdout, blue("ℹ")+" "+fmt.Sprintf(format, args...))
}

func printHeader(title string) {
	fmt.Fprintln(stdout, "\n"+bold(cyan(title)))
	fmt.Fprintln(stdout, dim(strings.Repeat("─", 40)))
}

// printTable pads on the plain cell text so colored cells still line up.
func printTable(headers []string, rows [][]string, style func(col int, cell string) string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(bold(h) + strings.Repeat(" ", widths[i]-len(h)+2))
	}
	b.WriteString("\n")
	for _, w := range widths {
		b.WriteString(strings.Repeat("─", w) + "  ")
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			pad := strings.Repeat(" ", widths[i]-len(cell)+2)
			if style != nil {
				cell = style(i, cell)
			}
			b.WriteString(cell + pad)
		}
		b.WriteString("\n")
	}
	fmt.Fprint(stdout, b.String())
}
