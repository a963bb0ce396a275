package sourcemap

// Builder concatenates decoded maps into the map of a single generated file.
type Builder struct {
	file      string
	sources   []string
	contents  []*string
	srcIndex  map[string]int
	names     []string
	nameIndex map[string]int
	lines     [][]Segment
}

func NewBuilder(file string) *Builder {
	return &Builder{
		file:      file,
		srcIndex:  map[string]int{},
		nameIndex: map[string]int{},
	}
}

func (b *Builder) source(name string, content *string) int {
	if i, ok := b.srcIndex[name]; ok {
		if b.contents[i] == nil {
			b.contents[i] = content
		}
		return i
	}
	b.srcIndex[name] = len(b.sources)
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return b.srcIndex[name]
}

func (b *Builder) name(n string) int {
	if i, ok := b.nameIndex[n]; ok {
		return i
	}
	b.nameIndex[n] = len(b.names)
	b.names = append(b.names, n)
	return b.nameIndex[n]
}

// Append places d so that its first generated line lands on genLine of the
// output. Lines before genLine that have no mappings stay unmapped.
func (b *Builder) Append(d *Decoded, genLine int) {
	srcs := make([]int, len(d.Sources))
	for i, s := range d.Sources {
		var content *string
		if i < len(d.SourcesContent) {
			content = d.SourcesContent[i]
		}
		srcs[i] = b.source(s, content)
	}
	for l, segs := range d.Lines {
		target := genLine + l
		for len(b.lines) <= target {
			b.lines = append(b.lines, nil)
		}
		for _, s := range segs {
			seg := Segment{GenCol: s.GenCol, Source: -1, Name: -1}
			if s.Source >= 0 {
				seg.Source, seg.SrcLine, seg.SrcCol = srcs[s.Source], s.SrcLine, s.SrcCol
				if s.Name >= 0 {
					seg.Name = b.name(d.Names[s.Name])
				}
			}
			b.lines[target] = append(b.lines[target], seg)
		}
	}
}

// Decoded returns the accumulated map, padded to lines generated lines.
func (b *Builder) Decoded(lines int) *Decoded {
	for len(b.lines) < lines {
		b.lines = append(b.lines, nil)
	}
	return &Decoded{
		File:           b.file,
		Sources:        b.sources,
		SourcesContent: b.contents,
		Names:          b.names,
		Lines:          b.lines,
	}
}
