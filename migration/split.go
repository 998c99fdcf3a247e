package migration

import "strings"

// SplitStatements breaks a script into statements on ";". Semicolons inside
// single-quoted, double-quoted or backtick-quoted text are kept, and a
// backslash inside single or double quotes escapes the next character, as in
// MySQL's default sql_mode. Line
// comments ("--") and block comments ("/* */") are dropped. Statements are
// trimmed and empty ones are skipped, so a script of only comments yields
// nothing.
func SplitStatements(script string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote rune // 0 when outside a quoted run
	)

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			cur.WriteRune(r)
			if r == '\\' && quote != '`' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
				continue
			}
			if r == quote {
				// A doubled quote character closes and reopens the run, so
				// the toggle handles '' escapes without special casing.
				quote = 0
			}
			continue
		}

		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if i < len(runes) {
				cur.WriteRune('\n')
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++ // land on the closing '/'
			cur.WriteRune(' ')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return stmts
}
