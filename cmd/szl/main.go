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

// Command szl drives the value/codec/heap/sketch/agg/emit/when packages
// over a small line-oriented emit-script, standing in for the full
// szl compiler and interpreter (out of scope; see SPEC_FULL.md). It
// exercises the same table lifecycle a compiled program would: declare
// tables, emit elements into them, then flush and print results.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/cpu"
)

var (
	dashProgram      string
	dashExecute      string
	dashSkipFiles    int
	dashPrintSource  bool
	dashPrintCode    bool
	dashPrintTables  bool
	dashPrintHisto   bool
	dashTraceInput   bool
	dashUseRecordIO  bool
	dashBeginRecord  int64
	dashEndRecord    int64
	dashNumRecords   int64
	dashTableOutput  string
	dashIgnoreUndefs bool
	dashNative       bool
	dashGenELF       string
	dashExplain      string
	dashMemoryLimit  int64
	dashConfig       string
	dashSeed         uint64
)

func init() {
	flag.StringVar(&dashProgram, "program", "", "emit-script file to run")
	flag.StringVar(&dashExecute, "e", "", "inline emit-script text (alternative to --program)")
	flag.StringVar(&dashExecute, "execute", "", "alias for --e")
	flag.IntVar(&dashSkipFiles, "skip_files", 0, "number of leading script lines to ignore (compat placeholder)")
	flag.BoolVar(&dashPrintSource, "print_source", false, "echo the script text before running it")
	flag.BoolVar(&dashPrintCode, "print_code", false, "print the parsed emit-script commands before running them")
	flag.BoolVar(&dashPrintTables, "print_tables", true, "print flushed table contents")
	flag.BoolVar(&dashPrintHisto, "print_histogram", false, "scale every numeric displayed value, in every table, by InverseHistogram at a fixed fraction of 0.5 (doubling it); per-table selection fractions are not used")
	flag.BoolVar(&dashTraceInput, "trace_input", false, "log each emit as it is applied")
	flag.BoolVar(&dashUseRecordIO, "use_recordio", false, "treat --program as gzip-compressed")
	flag.Int64Var(&dashBeginRecord, "begin_record", 0, "skip this many leading emit records")
	flag.Int64Var(&dashEndRecord, "end_record", -1, "stop after this many emit records (-1: no limit)")
	flag.Int64Var(&dashNumRecords, "num_records", -1, "alias for --end_record when begin_record is 0")
	flag.StringVar(&dashTableOutput, "table_output", "*", "table name to print, or * for all")
	flag.BoolVar(&dashIgnoreUndefs, "ignore_undefs", false, "accepted for compatibility; this driver has no undef-producing interpreter")
	flag.BoolVar(&dashNative, "native", false, "report native vector-extension availability")
	flag.StringVar(&dashGenELF, "gen_elf", "", "unsupported: native code generation is out of scope")
	flag.StringVar(&dashExplain, "explain", "", "print the when-lowering plan for the named identifier and exit")
	flag.Int64Var(&dashMemoryLimit, "memory_limit", 0, "abort once total kernel memory exceeds this many MB (0: unlimited)")
	flag.StringVar(&dashConfig, "config", "", "YAML file of flag defaults, overridden by any flag also given on the command line")
	flag.Uint64Var(&dashSeed, "seed", 0, "seed for the sample/weightedsample PRNG (0: derive from host/pid/time)")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func main() {
	applyConfigDefaults(os.Args[1:])
	flag.Parse()

	if dashGenELF != "" {
		exitf("szl: --gen_elf is not supported; native code generation is out of scope\n")
	}
	if dashNative {
		reportNative()
	}
	if dashSeed != 0 {
		setSampleSeed(dashSeed)
	}

	src, err := readSource()
	if err != nil {
		exitf("szl: %s\n", err)
	}
	if dashPrintSource {
		fmt.Print(src)
	}

	cmds, err := parseScript(src)
	if err != nil {
		exitf("szl: %s\n", err)
	}
	if dashPrintCode {
		for _, c := range cmds {
			fmt.Println(c)
		}
	}

	r := newRunner()
	if err := r.run(cmds); err != nil {
		exitf("szl: %s\n", err)
	}

	if dashExplain != "" {
		if err := r.explain(dashExplain, os.Stdout); err != nil {
			exitf("szl: %s\n", err)
		}
		return
	}

	if dashPrintTables {
		if err := r.printTables(os.Stdout, dashTableOutput, dashPrintHisto); err != nil {
			exitf("szl: %s\n", err)
		}
	}
}

// readSource loads the emit-script from -e/--execute, -program, or
// stdin, in that order of preference, decompressing it first when
// --use_recordio says the bytes are gzipped the way a sharded
// map-reduce input stage would hand them to the original binary.
func readSource() (string, error) {
	if dashExecute != "" {
		return dashExecute, nil
	}
	var r io.Reader
	if dashProgram == "" || dashProgram == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(dashProgram)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	if dashUseRecordIO {
		gz, err := gzipReader(r)
		if err != nil {
			return "", err
		}
		defer gz.Close()
		r = gz
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// reportNative prints the same kind of one-line advisory the original
// --native flag logged about whether the host could run vectorized
// kernels, without it gating anything this driver does.
func reportNative() {
	switch {
	case cpu.X86.HasAVX2:
		fmt.Fprintln(os.Stderr, "szl: native: host supports AVX2")
	case cpu.ARM64.HasASIMD:
		fmt.Fprintln(os.Stderr, "szl: native: host supports ASIMD")
	default:
		fmt.Fprintln(os.Stderr, "szl: native: no recognized vector extension; falling back to portable kernels")
	}
}

func recordLimit() (begin, end int64) {
	begin = dashBeginRecord
	end = dashEndRecord
	if end < 0 && dashNumRecords >= 0 {
		end = begin + dashNumRecords
	}
	return begin, end
}

// splitTopLevel splits s on sep, ignoring occurrences inside double
// quotes, the way the script's own literal syntax needs.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == sep && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}
