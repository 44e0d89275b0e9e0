package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	RecoilKind    = "R"
	ScatteredKind = "S"
)

// Event is one particle reaching the end of the detector stack.
type Event struct {
	Kind  string
	E     float64 // [MeV]
	Z     int
	A     float64 // [u]
	Depth float64 // [nm] of the recoil event
	W     float64

	TOF float64 // [ns]

	X, Y float64 // [mm] hit position in the first aperture plane
	E0   float64 // [MeV] energy right after the recoil event
}

// Format selects the optional event columns.
type Format struct {
	TOF      bool
	Advanced bool
}

func (f Format) columns() int {
	n := 6
	if f.TOF {
		n++
	}
	if f.Advanced {
		n += 3
	}
	return n
}

func (f Format) Event(e Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %10.5f %3d %8.4f %10.3f %12.6f", e.Kind, e.E, e.Z, e.A, e.Depth, e.W)
	if f.TOF {
		fmt.Fprintf(&sb, " %10.4f", e.TOF)
	}
	if f.Advanced {
		fmt.Fprintf(&sb, " %8.3f %8.3f %10.5f", e.X, e.Y, e.E0)
	}
	return sb.String()
}

func (f Format) ParseEvent(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) != f.columns() {
		return Event{}, fmt.Errorf("output: event line has %d fields, want %d", len(fields), f.columns())
	}
	var e Event
	e.Kind = fields[0]
	if e.Kind != RecoilKind && e.Kind != ScatteredKind {
		return Event{}, fmt.Errorf("output: unknown event kind %q", e.Kind)
	}
	z, err := strconv.Atoi(fields[2])
	if err != nil {
		return Event{}, fmt.Errorf("output: %w", err)
	}
	e.Z = z
	floats := []*float64{&e.E, nil, &e.A, &e.Depth, &e.W}
	if f.TOF {
		floats = append(floats, &e.TOF)
	}
	if f.Advanced {
		floats = append(floats, &e.X, &e.Y, &e.E0)
	}
	for i, dst := range floats {
		if dst == nil {
			continue
		}
		if *dst, err = strconv.ParseFloat(fields[i+1], 64); err != nil {
			return Event{}, fmt.Errorf("output: %w", err)
		}
	}
	return e, nil
}

// Range is a terminated primary: stopped at Depth or transmitted with energy E.
type Range struct {
	Transmitted bool
	Value       float64 // [nm] or [MeV]
}

func FormatRange(r Range) string {
	if r.Transmitted {
		return fmt.Sprintf("T %12.6f", r.Value)
	}
	return fmt.Sprintf("R %10.3f", r.Value)
}

func ParseRange(line string) (Range, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || (fields[0] != "R" && fields[0] != "T") {
		return Range{}, fmt.Errorf("output: malformed range line %q", line)
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Range{}, fmt.Errorf("output: %w", err)
	}
	return Range{Transmitted: fields[0] == "T", Value: v}, nil
}

func WriteEvents(w io.Writer, rows []Event, f Format) error {
	bw := bufio.NewWriter(w)
	for _, e := range rows {
		bw.WriteString(f.Event(e))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func WriteRanges(w io.Writer, rows []Range) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		bw.WriteString(FormatRange(r))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func ReadEvents(r io.Reader, f Format) ([]Event, error) {
	var out []Event
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		e, err := f.ParseEvent(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func ReadRanges(r io.Reader) ([]Range, error) {
	var out []Range
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		rg, err := ParseRange(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rg)
	}
	return out, sc.Err()
}
