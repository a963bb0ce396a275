// Package sourcemap reads, composes and writes version 3 source maps.
//
// Maps are handled in decoded form: one slice of segments per generated
// line, with absolute (not delta-encoded) positions. All positions are
// zero-based.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Map is the JSON form of a source map.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("source map: unsupported version %d", m.Version)
	}
	return &m, nil
}

func (m *Map) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// Segment maps a generated column to an original position. Source and Name
// are -1 when absent.
type Segment struct {
	GenCol  int
	Source  int
	SrcLine int
	SrcCol  int
	Name    int
}

type Decoded struct {
	File           string
	Sources        []string
	SourcesContent []*string
	Names          []string
	Lines          [][]Segment
}

// Decode expands the mappings of m.
func Decode(m *Map) (*Decoded, error) {
	d := &Decoded{
		File:           m.File,
		Sources:        slices.Clone(m.Sources),
		SourcesContent: slices.Clone(m.SourcesContent),
		Names:          slices.Clone(m.Names),
	}
	if m.SourceRoot != "" {
		for i, s := range d.Sources {
			d.Sources[i] = strings.TrimSuffix(m.SourceRoot, "/") + "/" + s
		}
	}

	var src, srcLine, srcCol, name int
	for _, line := range strings.Split(m.Mappings, ";") {
		var segs []Segment
		genCol := 0
		for _, raw := range strings.Split(line, ",") {
			if raw == "" {
				continue
			}
			var fields [5]int
			n, i := 0, 0
			for i < len(raw) {
				if n == 5 {
					return nil, fmt.Errorf("source map: segment %q has too many fields", raw)
				}
				v, next, err := decodeVLQ(raw, i)
				if err != nil {
					return nil, fmt.Errorf("source map: %w", err)
				}
				fields[n] = v
				n++
				i = next
			}

			genCol += fields[0]
			seg := Segment{GenCol: genCol, Source: -1, Name: -1}
			switch n {
			case 1:
			case 4, 5:
				src += fields[1]
				srcLine += fields[2]
				srcCol += fields[3]
				if src < 0 || src >= len(d.Sources) {
					return nil, fmt.Errorf("source map: source index %d out of range", src)
				}
				seg.Source, seg.SrcLine, seg.SrcCol = src, srcLine, srcCol
				if n == 5 {
					name += fields[4]
					seg.Name = name
				}
			default:
				return nil, fmt.Errorf("source map: segment %q has %d fields", raw, n)
			}
			segs = append(segs, seg)
		}
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].GenCol < segs[j].GenCol })
		d.Lines = append(d.Lines, segs)
	}
	return d, nil
}

// Encode delta-encodes d back into a Map.
func (d *Decoded) Encode() *Map {
	var buf []byte
	var src, srcLine, srcCol, name int
	for l, segs := range d.Lines {
		if l > 0 {
			buf = append(buf, ';')
		}
		genCol := 0
		for i, s := range segs {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendVLQ(buf, s.GenCol-genCol)
			genCol = s.GenCol
			if s.Source < 0 {
				continue
			}
			buf = appendVLQ(buf, s.Source-src)
			buf = appendVLQ(buf, s.SrcLine-srcLine)
			buf = appendVLQ(buf, s.SrcCol-srcCol)
			src, srcLine, srcCol = s.Source, s.SrcLine, s.SrcCol
			if s.Name >= 0 {
				buf = appendVLQ(buf, s.Name-name)
				name = s.Name
			}
		}
	}

	m := &Map{
		Version:        3,
		File:           d.File,
		Sources:        cloneOrEmpty(d.Sources),
		SourcesContent: slices.Clone(d.SourcesContent),
		Names:          cloneOrEmpty(d.Names),
		Mappings:       string(buf),
	}
	return m
}

// Lookup returns the segment covering the generated position, that is the
// last segment on line at or before col. ok is false for unmapped positions.
func (d *Decoded) Lookup(line, col int) (Segment, bool) {
	if line < 0 || line >= len(d.Lines) {
		return Segment{}, false
	}
	segs := d.Lines[line]
	i := sort.Search(len(segs), func(i int) bool { return segs[i].GenCol > col }) - 1
	if i < 0 || segs[i].Source < 0 {
		return Segment{}, false
	}
	return segs[i], true
}

// Original returns the source name and position a generated position maps
// back to.
func (d *Decoded) Original(line, col int) (source string, srcLine, srcCol int, ok bool) {
	s, ok := d.Lookup(line, col)
	if !ok {
		return "", 0, 0, false
	}
	return d.Sources[s.Source], s.SrcLine, s.SrcCol, true
}

// Identity maps every line of content onto itself.
func Identity(source, content string) *Decoded {
	n := strings.Count(content, "\n") + 1
	d := &Decoded{
		Sources:        []string{source},
		SourcesContent: []*string{&content},
		Lines:          make([][]Segment, n),
	}
	for l := range n {
		d.Lines[l] = []Segment{{GenCol: 0, Source: 0, SrcLine: l, SrcCol: 0, Name: -1}}
	}
	return d
}

// Compose chains two maps: outer maps C to B and inner maps B to A. The
// result maps C to A. Positions in B between two inner segments are carried
// over by column offset, so identity-style inner maps stay exact.
func Compose(outer, inner *Decoded) *Decoded {
	out := &Decoded{
		File:           outer.File,
		Sources:        slices.Clone(inner.Sources),
		SourcesContent: slices.Clone(inner.SourcesContent),
		Lines:          make([][]Segment, len(outer.Lines)),
	}
	names := map[string]int{}
	addName := func(n string) int {
		if i, ok := names[n]; ok {
			return i
		}
		names[n] = len(out.Names)
		out.Names = append(out.Names, n)
		return names[n]
	}

	for l, segs := range outer.Lines {
		var line []Segment
		for _, s := range segs {
			if s.Source < 0 {
				line = append(line, Segment{GenCol: s.GenCol, Source: -1, Name: -1})
				continue
			}
			is, ok := inner.Lookup(s.SrcLine, s.SrcCol)
			if !ok {
				line = append(line, Segment{GenCol: s.GenCol, Source: -1, Name: -1})
				continue
			}
			seg := Segment{
				GenCol:  s.GenCol,
				Source:  is.Source,
				SrcLine: is.SrcLine,
				SrcCol:  is.SrcCol + (s.SrcCol - is.GenCol),
				Name:    -1,
			}
			switch {
			case is.Name >= 0 && is.GenCol == s.SrcCol:
				seg.Name = addName(inner.Names[is.Name])
			case s.Name >= 0:
				seg.Name = addName(outer.Names[s.Name])
			}
			line = append(line, seg)
		}
		out.Lines[l] = line
	}
	return out
}

func cloneOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
