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
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/google/szl/agg"
	"github.com/google/szl/codec"
	"github.com/google/szl/emit"
	"github.com/google/szl/value"
	"github.com/google/szl/when"
)

// tableDef remembers a table's declared shape alongside its live
// emit.Table, so printTables can re-derive element/weight kinds for
// literal decoding and --print_histogram scaling.
type tableDef struct {
	table      *emit.Table
	elemType   value.Kind
	hasWeight  bool
	weightType value.Kind
	kind       string
}

type runner struct {
	order  []string
	tables map[string]*tableDef
}

func newRunner() *runner {
	return &runner{tables: make(map[string]*tableDef)}
}

func (r *runner) run(cmds []command) error {
	var recordNum int64
	begin, end := recordLimit()
	for _, c := range cmds {
		switch c.kind {
		case cmdTable:
			if err := r.declareTable(c); err != nil {
				return err
			}
		case cmdEmit:
			if recordNum < begin {
				recordNum++
				continue
			}
			if end >= 0 && recordNum >= end {
				recordNum++
				continue
			}
			recordNum++
			if err := r.applyEmit(c); err != nil {
				return err
			}
			if dashMemoryLimit > 0 {
				if mb := r.totalMemory() / (1024 * 1024); int64(mb) > dashMemoryLimit {
					return fmt.Errorf("exceeded --memory_limit of %d MB (at %d MB)", dashMemoryLimit, mb)
				}
			}
		}
	}
	return nil
}

func (r *runner) declareTable(c command) error {
	if _, exists := r.tables[c.table]; exists {
		return fmt.Errorf("table %s: already declared", c.table)
	}
	t := agg.Type{
		Kind:      c.tableKind,
		Param:     c.param,
		Element:   value.Descriptor{Kind: c.elemType},
		HasWeight: c.hasWeight,
	}
	if c.hasWeight {
		t.Weight = value.Descriptor{Kind: c.weightType}
	}
	w, err := agg.NewWriter(t)
	if err != nil {
		return fmt.Errorf("table %s: %w", c.table, err)
	}
	r.order = append(r.order, c.table)
	r.tables[c.table] = &tableDef{
		table:      emit.NewTable(c.table, w),
		elemType:   c.elemType,
		hasWeight:  c.hasWeight,
		weightType: c.weightType,
		kind:       c.tableKind,
	}
	return nil
}

func (r *runner) applyEmit(c command) error {
	def, ok := r.tables[c.table]
	if !ok {
		return fmt.Errorf("emit into undeclared table %s", c.table)
	}
	elem, err := parseLiteral(def.elemType, c.elemLit)
	if err != nil {
		return fmt.Errorf("emit %s: element literal: %w", c.table, err)
	}

	em := emit.NewEmitter(def.table)
	em.Begin(emit.EmitGroup, 0)
	em.Begin(emit.ElementGroup, 0)
	putScalar(em, elem)
	em.End(emit.ElementGroup, 0)
	if c.hasWeight {
		w, err := parseLiteral(def.weightType, c.weightLit)
		if err != nil {
			return fmt.Errorf("emit %s: weight literal: %w", c.table, err)
		}
		em.Begin(emit.WeightGroup, 0)
		putScalar(em, w)
		em.End(emit.WeightGroup, 0)
	}
	em.End(emit.EmitGroup, 0)

	if dashTraceInput {
		fmt.Printf("szl: emit %s %s\n", c.table, elem)
	}
	if em.Failed() {
		_, err := em.Result()
		return fmt.Errorf("emit %s: %w", c.table, err)
	}
	return nil
}

// putScalar forwards v to whichever slot em currently has open. Every
// table kind this driver's script format can declare has a scalar
// element/weight shape, so no ARRAY/MAP/TUPLE nesting is needed here.
func putScalar(em *emit.Emitter, v value.TypedValue) {
	switch v.Kind {
	case value.Bool:
		em.PutBool(v.Bool())
	case value.Int:
		em.PutInt(v.Int())
	case value.Uint:
		em.PutUint(v.Uint())
	case value.Float:
		em.PutFloat(v.Float())
	case value.Fingerprint:
		em.PutFingerprint(v.Uint())
	case value.Time:
		em.PutTime(v.Uint())
	case value.String:
		em.PutString(v.String())
	case value.Bytes:
		em.PutBytes(v.Bytes())
	}
}

func (r *runner) totalMemory() int {
	total := 0
	for _, def := range r.tables {
		total += def.table.TotalMemory()
	}
	return total
}

// printTables flushes and prints every declared table whose name
// matches which ("*" for all). With histogram set, every numeric
// displayed value, whatever the table's kind, is scaled by
// InverseHistogram at a fixed fraction of 0.5. The full dump is hashed with
// BLAKE2b-256 and trailed with the digest, the way a table-output file
// meant for downstream ingestion would carry its own integrity check.
func (r *runner) printTables(w io.Writer, which string, histogram bool) error {
	var buf bytes.Buffer
	for _, name := range r.order {
		if which != "*" && which != name {
			continue
		}
		def := r.tables[name]
		fmt.Fprintf(&buf, "table %s (%s):\n", name, def.kind)
		var rows []string
		def.table.ForEach(func(key []byte, k agg.Kernel) {
			for _, disp := range k.FlushDisplay() {
				rows = append(rows, formatRow(key, disp, histogram, def))
			}
		})
		sort.Strings(rows)
		for _, row := range rows {
			fmt.Fprintln(&buf, row)
		}
	}
	sum := blake2b.Sum256(buf.Bytes())
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(w, "# blake2b-256 %s\n", hex.EncodeToString(sum[:]))
	return nil
}

func formatRow(key, disp []byte, histogram bool, def *tableDef) string {
	var b strings.Builder
	if len(key) > 0 {
		fmt.Fprintf(&b, "[%s] ", hex.EncodeToString(key))
	}
	if len(disp) == 0 {
		b.WriteString("<empty>")
		return b.String()
	}
	dec := codec.NewDecoder(disp)
	first := true
	for !dec.Done() {
		v, err := dec.Next()
		if err != nil {
			fmt.Fprintf(&b, "<undecodable: %x>", disp)
			break
		}
		if !first {
			b.WriteString(" ")
		}
		first = false
		if histogram && v.IsNumeric() {
			v = agg.InverseHistogram([]value.Weight{v}, 0.5)[0]
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

// explain prints the when-lowering plan the driver would generate for
// a single-quantifier `when (q in a; a[q] == target) ...` skeleton
// named by identifier, matching --explain's documented use as a
// debugging aid (spec.md §6) without requiring a real parser: the
// identifier names the quantifier variable, and the explanation is
// generated against a synthetic array-shaped environment.
func (r *runner) explain(identifier string, w io.Writer) error {
	env := when.MapEnv{identifier + "_arr": when.ShapeArray}
	cond := when.BinOp("==", when.Index(when.Var(identifier+"_arr"), when.Var(identifier)), when.Var("target"))
	stmt, err := when.Lower(env, when.WhenStmt{
		Quantifiers: []when.Quantifier{{Name: identifier, Kind: when.Some}},
		Cond:        cond,
		Body:        when.Opaque("matched"),
	})
	if err != nil {
		return fmt.Errorf("explain %s: %w", identifier, err)
	}
	fmt.Fprintf(w, "when-lowering for %q:\n%s\n", identifier, dumpStmt(stmt, 0))
	return nil
}

func dumpStmt(s *when.Stmt, depth int) string {
	if s == nil {
		return ""
	}
	indent := strings.Repeat("  ", depth)
	var b strings.Builder
	switch s.Kind {
	case when.SBlock:
		for _, st := range s.List {
			b.WriteString(dumpStmt(st, depth))
		}
	case when.SFor:
		fmt.Fprintf(&b, "%sfor {\n%s%s}\n", indent, dumpStmt(s.Body, depth+1), indent)
	case when.SWhileTrue:
		fmt.Fprintf(&b, "%swhile (true) {\n%s%s}\n", indent, dumpStmt(s.Body, depth+1), indent)
	case when.SIf:
		fmt.Fprintf(&b, "%sif (...) {\n%s%s}", indent, dumpStmt(s.Then, depth+1), indent)
		if s.Else != nil {
			fmt.Fprintf(&b, " else {\n%s%s}", dumpStmt(s.Else, depth+1), indent)
		}
		b.WriteString("\n")
	case when.SBreak:
		fmt.Fprintf(&b, "%sbreak\n", indent)
	case when.SAssign:
		fmt.Fprintf(&b, "%s%s := ...\n", indent, s.Name)
	case when.SOpaque:
		fmt.Fprintf(&b, "%s<%v>\n", indent, s.Opaque)
	}
	return b.String()
}
