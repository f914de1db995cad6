// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/szl/value"
)

// The emit-script format stands in for a compiled szl program's table
// declarations and emit statements:
//
//	table <name> <kind> [param] <elemtype> [weight <weighttype>]
//	emit <name> <elemliteral> [weight <weightliteral>]
//
// elemtype/weighttype is one of bool, int, uint, float, fingerprint,
// time, bytes, string. A literal is parsed according to its table's
// declared type: a double-quoted Go string literal for bytes/string,
// true/false for bool, a Go-syntax number otherwise.
type cmdKind int

const (
	cmdTable cmdKind = iota
	cmdEmit
)

type command struct {
	kind       cmdKind
	table      string
	tableKind  string
	param      int
	elemType   value.Kind
	hasWeight  bool
	weightType value.Kind
	elemLit    string
	weightLit  string
}

func (c command) String() string {
	switch c.kind {
	case cmdTable:
		s := fmt.Sprintf("table %s %s", c.table, c.tableKind)
		if c.param != 0 {
			s += fmt.Sprintf(" %d", c.param)
		}
		s += " " + c.elemType.String()
		if c.hasWeight {
			s += " weight " + c.weightType.String()
		}
		return s
	default:
		s := fmt.Sprintf("emit %s %s", c.table, c.elemLit)
		if c.hasWeight {
			s += " weight " + c.weightLit
		}
		return s
	}
}

func parseKind(s string) (value.Kind, error) {
	switch s {
	case "bool":
		return value.Bool, nil
	case "int":
		return value.Int, nil
	case "uint":
		return value.Uint, nil
	case "float":
		return value.Float, nil
	case "fingerprint":
		return value.Fingerprint, nil
	case "time":
		return value.Time, nil
	case "bytes":
		return value.Bytes, nil
	case "string":
		return value.String, nil
	default:
		return value.Invalid, fmt.Errorf("unknown elemtype %q", s)
	}
}

// parseScript parses every non-blank, non-comment line of src.
func parseScript(src string) ([]command, error) {
	var cmds []command
	for i, line := range strings.Split(src, "\n") {
		if dashSkipFiles > 0 && i < dashSkipFiles {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func parseLine(line string) (command, error) {
	fields := splitTopLevel(line, ' ')
	toks := fields[:0]
	for _, f := range fields {
		if f != "" {
			toks = append(toks, f)
		}
	}
	if len(toks) == 0 {
		return command{}, fmt.Errorf("empty line")
	}
	switch toks[0] {
	case "table":
		return parseTableLine(toks[1:])
	case "emit":
		return parseEmitLine(toks[1:])
	default:
		return command{}, fmt.Errorf("unknown command %q", toks[0])
	}
}

func parseTableLine(toks []string) (command, error) {
	if len(toks) < 2 {
		return command{}, fmt.Errorf("table: expected at least name and kind")
	}
	c := command{kind: cmdTable, table: toks[0], tableKind: toks[1]}
	rest := toks[2:]
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			c.param = n
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		return command{}, fmt.Errorf("table %s: missing element type", c.table)
	}
	et, err := parseKind(rest[0])
	if err != nil {
		return command{}, err
	}
	c.elemType = et
	rest = rest[1:]
	if len(rest) >= 2 && rest[0] == "weight" {
		wt, err := parseKind(rest[1])
		if err != nil {
			return command{}, err
		}
		c.hasWeight = true
		c.weightType = wt
		rest = rest[2:]
	}
	if len(rest) != 0 {
		return command{}, fmt.Errorf("table %s: unexpected trailing tokens %v", c.table, rest)
	}
	return c, nil
}

func parseEmitLine(toks []string) (command, error) {
	if len(toks) < 2 {
		return command{}, fmt.Errorf("emit: expected at least name and element literal")
	}
	c := command{kind: cmdEmit, table: toks[0], elemLit: toks[1]}
	rest := toks[2:]
	if len(rest) >= 2 && rest[0] == "weight" {
		c.hasWeight = true
		c.weightLit = rest[1]
		rest = rest[2:]
	}
	if len(rest) != 0 {
		return command{}, fmt.Errorf("emit %s: unexpected trailing tokens %v", c.table, rest)
	}
	return c, nil
}

// parseLiteral parses lit as a value.TypedValue of kind k.
func parseLiteral(k value.Kind, lit string) (value.TypedValue, error) {
	switch k {
	case value.Bool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewBool(b), nil
	case value.Int:
		n, err := strconv.ParseInt(lit, 0, 64)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewInt(n), nil
	case value.Uint, value.Fingerprint, value.Time:
		n, err := strconv.ParseUint(lit, 0, 64)
		if err != nil {
			return value.TypedValue{}, err
		}
		switch k {
		case value.Fingerprint:
			return value.NewFingerprint(n), nil
		case value.Time:
			return value.NewTime(n), nil
		default:
			return value.NewUint(n), nil
		}
	case value.Float:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return value.TypedValue{}, err
		}
		return value.NewFloat(f), nil
	case value.String:
		s, err := strconv.Unquote(lit)
		if err != nil {
			return value.TypedValue{}, fmt.Errorf("string literal %q: %w", lit, err)
		}
		return value.NewString(s), nil
	case value.Bytes:
		s, err := strconv.Unquote(lit)
		if err != nil {
			return value.TypedValue{}, fmt.Errorf("bytes literal %q: %w", lit, err)
		}
		return value.NewBytes([]byte(s)), nil
	default:
		return value.TypedValue{}, fmt.Errorf("unsupported literal kind %s", k)
	}
}
