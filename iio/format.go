package iio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DataFormat describes how a scan element stores one sample in a buffer.
type DataFormat struct {
	Length         uint // storage bits
	Bits           uint // meaningful bits
	Shift          uint
	Repeat         uint
	IsSigned       bool
	IsFullyDefined bool
	IsBE           bool
	WithScale      bool
	Scale          float64
}

// Bytes is the storage size of one repeat of the sample.
func (f DataFormat) Bytes() int {
	return int(f.Length / 8)
}

// String renders f in the sysfs scan-element syntax.
func (f DataFormat) String() string {
	endian := "le"
	if f.IsBE {
		endian = "be"
	}
	sign := "u"
	if f.IsSigned {
		sign = "s"
	}
	if f.IsFullyDefined {
		sign = strings.ToUpper(sign)
	}
	s := fmt.Sprintf("%s:%s%d/%d", endian, sign, f.Bits, f.Length)
	if f.Repeat > 1 {
		s += fmt.Sprintf("X%d", f.Repeat)
	}
	return s + fmt.Sprintf(">>%d", f.Shift)
}

// ParseDataFormat parses a scan-element type such as "le:S12/16>>0" or
// "be:u8/16X2>>4".
func ParseDataFormat(s string) (DataFormat, error) {
	var f DataFormat
	endian, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return f, fmt.Errorf("data format %q: missing endianness: %w", s, ErrParse)
	}
	switch endian {
	case "le":
	case "be":
		f.IsBE = true
	default:
		return f, fmt.Errorf("data format %q: endianness %q: %w", s, endian, ErrParse)
	}
	if rest == "" {
		return f, fmt.Errorf("data format %q: missing sign: %w", s, ErrParse)
	}
	switch rest[0] {
	case 's':
		f.IsSigned = true
	case 'S':
		f.IsSigned, f.IsFullyDefined = true, true
	case 'u':
	case 'U':
		f.IsFullyDefined = true
	default:
		return f, fmt.Errorf("data format %q: sign %q: %w", s, rest[0], ErrParse)
	}
	rest = rest[1:]

	sizes, shift, ok := strings.Cut(rest, ">>")
	if !ok {
		return f, fmt.Errorf("data format %q: missing shift: %w", s, ErrParse)
	}
	bits, length, ok := strings.Cut(sizes, "/")
	if !ok {
		return f, fmt.Errorf("data format %q: missing storage size: %w", s, ErrParse)
	}
	repeat := "1"
	if l, r, found := strings.Cut(length, "X"); found {
		length, repeat = l, r
	}

	var err error
	if f.Bits, err = parseUint(bits); err != nil {
		return f, fmt.Errorf("data format %q: bits: %w", s, err)
	}
	if f.Length, err = parseUint(length); err != nil {
		return f, fmt.Errorf("data format %q: length: %w", s, err)
	}
	if f.Repeat, err = parseUint(repeat); err != nil {
		return f, fmt.Errorf("data format %q: repeat: %w", s, err)
	}
	if f.Shift, err = parseUint(shift); err != nil {
		return f, fmt.Errorf("data format %q: shift: %w", s, err)
	}
	if f.Length == 0 || f.Length%8 != 0 || f.Bits > f.Length || f.Repeat == 0 {
		return f, fmt.Errorf("data format %q: inconsistent sizes: %w", s, ErrParse)
	}
	return f, nil
}

func parseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrParse)
	}
	return uint(v), nil
}

// Slot locates one enabled channel inside a buffer frame.
type Slot struct {
	Index  int
	Offset int
	Size   int
}

// Layout is the frame layout of a buffer: one entry per enabled scan element,
// ordered by scan index, plus the padded frame size.
type Layout struct {
	Slots     []Slot
	FrameSize int
}

// ScanElement is the subset of channel information the frame layout needs.
type ScanElement interface {
	Index() int
	Format() DataFormat
}

// NewLayout computes the frame layout for elems. Each element is aligned to
// its own storage size; elements sharing a scan index share a slot.
func NewLayout(elems []ScanElement) Layout {
	sorted := append([]ScanElement(nil), elems...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index() < sorted[j].Index() })

	var l Layout
	prev := -1
	for _, e := range sorted {
		f := e.Format()
		unit := f.Bytes()
		if unit == 0 {
			continue
		}
		if e.Index() == prev && len(l.Slots) > 0 {
			l.Slots = append(l.Slots, l.Slots[len(l.Slots)-1])
			l.Slots[len(l.Slots)-1].Index = e.Index()
			continue
		}
		if l.FrameSize%unit != 0 {
			l.FrameSize += unit - l.FrameSize%unit
		}
		size := unit * int(f.Repeat)
		l.Slots = append(l.Slots, Slot{Index: e.Index(), Offset: l.FrameSize, Size: size})
		l.FrameSize += size
		prev = e.Index()
	}
	return l
}

// Find returns the slot for scan index idx.
func (l Layout) Find(idx int) (Slot, bool) {
	for _, s := range l.Slots {
		if s.Index == idx {
			return s, true
		}
	}
	return Slot{}, false
}
