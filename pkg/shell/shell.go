// Package shell splits configured command lines into argv and renders argv
// back into scripts for the crash report.
package shell

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUnclosedQuote is returned when a quoted string is not closed.
	ErrUnclosedQuote = errors.New("unclosed quote in command line")

	// ErrTrailingEscape is returned for a backslash at the end of input.
	ErrTrailingEscape = errors.New("trailing escape character in command line")
)

type quoteState int

const (
	bare quoteState = iota
	single
	double
)

// Split breaks a command line into words using POSIX-like rules: single
// quotes are literal, double quotes honour \" \\ \$ and \`, and a bare
// backslash escapes the next character. A blank line yields no words.
func Split(line string) ([]string, error) {
	var (
		words   []string
		word    strings.Builder
		state   = bare
		started bool
	)
	flush := func() {
		if started {
			words = append(words, word.String())
			word.Reset()
			started = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch state {
		case single:
			if ch == '\'' {
				state = bare
				continue
			}
			word.WriteRune(ch)

		case double:
			switch ch {
			case '"':
				state = bare
			case '\\':
				if i+1 >= len(runes) {
					return nil, ErrTrailingEscape
				}
				i++
				if next := runes[i]; strings.ContainsRune("\"\\$`", next) {
					word.WriteRune(next)
				} else {
					word.WriteRune('\\')
					word.WriteRune(next)
				}
			default:
				word.WriteRune(ch)
			}

		default:
			switch {
			case ch == '\'':
				state, started = single, true
			case ch == '"':
				state, started = double, true
			case ch == '\\':
				if i+1 >= len(runes) {
					return nil, ErrTrailingEscape
				}
				i++
				word.WriteRune(runes[i])
				started = true
			case unicode.IsSpace(ch):
				flush()
			default:
				word.WriteRune(ch)
				started = true
			}
		}
	}

	switch state {
	case single:
		return nil, fmt.Errorf("%w: single", ErrUnclosedQuote)
	case double:
		return nil, fmt.Errorf("%w: double", ErrUnclosedQuote)
	}
	flush()
	return words, nil
}

// Join renders args as one POSIX shell line, quoting where needed.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Quote quotes one argument for a POSIX shell.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("'\"\\$`;&|<>()*?!#~", r)
	}) {
		return arg
	}
	if !strings.Contains(arg, "'") {
		return "'" + arg + "'"
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// QuoteBatch quotes one argument for a Windows batch file.
func QuoteBatch(arg string) string {
	if arg == "" {
		return `""`
	}
	if !strings.ContainsFunc(arg, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`"&|<>^%`, r)
	}) {
		return arg
	}
	escaped := strings.ReplaceAll(arg, `"`, `""`)
	escaped = strings.ReplaceAll(escaped, "%", "%%")
	return `"` + escaped + `"`
}

// Script renders argv as a runnable script. windows selects batch syntax.
// dir, when set, becomes the working directory of the script.
func Script(argv []string, dir string, windows bool) string {
	var b strings.Builder
	if windows {
		b.WriteString("@echo off\r\n")
		if dir != "" {
			b.WriteString("cd /d " + QuoteBatch(dir) + "\r\n")
		}
		parts := make([]string, len(argv))
		for i, a := range argv {
			parts[i] = QuoteBatch(a)
		}
		b.WriteString(strings.Join(parts, " ") + "\r\n")
		return b.String()
	}

	b.WriteString("#!/bin/sh\n")
	if dir != "" {
		b.WriteString("cd " + Quote(dir) + " || exit 1\n")
	}
	b.WriteString("exec " + Join(argv) + "\n")
	return b.String()
}
