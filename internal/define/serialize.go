// Copyright 2017 Teriks
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package define

import (
	"strconv"
	"strings"
)

// Serialize renders v back into the literal grammar Parse accepts, such
// that Parse(v.Serialize()) produces a Value equal to v. This is the
// mechanism the subpake bridge uses to hand a Define Store across a
// process boundary.
func (v Value) Serialize() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.kind {
	case Int:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case Float:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		sb.WriteString(s)
	case Bool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case String:
		sb.WriteString(quoteString(v.s))
	case Sequence:
		sb.WriteByte('[')
		writeElems(sb, v.seq)
		sb.WriteByte(']')
	case Set:
		sb.WriteByte('{')
		writeElems(sb, v.seq)
		sb.WriteByte('}')
	case Tuple:
		sb.WriteByte('(')
		writeElems(sb, v.seq)
		sb.WriteByte(')')
	case Mapping:
		sb.WriteByte('{')
		for i, e := range v.m {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.Key.write(sb)
			sb.WriteString(": ")
			e.Val.write(sb)
		}
		sb.WriteByte('}')
	}
}

func writeElems(sb *strings.Builder, elems []Value) {
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		e.write(sb)
	}
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
