package svd

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

/* Only the parts of the document needed to locate fields are decoded.
 * Clusters, enumerated values and access attributes are skipped. */
type xmlDevice struct {
	Name        string          `xml:"name"`
	Peripherals []xmlPeripheral `xml:"peripherals>peripheral"`
}

type xmlPeripheral struct {
	DerivedFrom string        `xml:"derivedFrom,attr"`
	Name        string        `xml:"name"`
	BaseAddress string        `xml:"baseAddress"`
	Registers   []xmlRegister `xml:"registers>register"`
}

type xmlRegister struct {
	Name          string     `xml:"name"`
	AddressOffset string     `xml:"addressOffset"`
	Dim           string     `xml:"dim"`
	DimIncrement  string     `xml:"dimIncrement"`
	DimIndex      string     `xml:"dimIndex"`
	Fields        []xmlField `xml:"fields>field"`
}

type xmlField struct {
	Name      string `xml:"name"`
	BitOffset string `xml:"bitOffset"`
	BitWidth  string `xml:"bitWidth"`
	Lsb       string `xml:"lsb"`
	Msb       string `xml:"msb"`
	BitRange  string `xml:"bitRange"`
}

// Parse decodes a CMSIS-SVD document.
func Parse(r io.Reader) (*Device, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var doc xmlDevice
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrorMalformedSVD, err)
	}

	dev := &Device{
		Name: strings.TrimSpace(doc.Name),
	}

	byName := make(map[string]*Peripheral)
	derived := make(map[string]string)
	for _, xp := range doc.Peripherals {
		p, err := xp.convert()
		if err != nil {
			return nil, err
		}
		if _, ok := byName[p.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate peripheral %s", ErrorMalformedSVD, p.Name)
		}
		byName[p.Name] = p
		derived[p.Name] = strings.TrimSpace(xp.DerivedFrom)
		dev.Peripherals = append(dev.Peripherals, p)
	}

	/* derivedFrom may name a peripheral declared later in the document,
	 * chains are followed until a peripheral with registers is found */
	for i, xp := range doc.Peripherals {
		p := dev.Peripherals[i]
		base := strings.TrimSpace(xp.DerivedFrom)
		for hops := 0; base != "" && len(p.Registers) == 0; hops++ {
			parent, ok := byName[base]
			if !ok {
				return nil, fmt.Errorf("%w: %s derives from unknown peripheral %s", ErrorMalformedSVD, p.Name, base)
			}
			if hops >= len(dev.Peripherals) {
				return nil, fmt.Errorf("%w: derivation loop at %s", ErrorMalformedSVD, p.Name)
			}
			p.Registers = parent.Registers
			base = derived[parent.Name]
		}
	}

	return dev, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func (xp xmlPeripheral) convert() (*Peripheral, error) {
	name := strings.TrimSpace(xp.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: peripheral without name", ErrorMalformedSVD)
	}

	base, err := parseNumber(xp.BaseAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: peripheral %s baseAddress: %v", ErrorMalformedSVD, name, err)
	}

	p := &Peripheral{
		Name:        name,
		BaseAddress: base,
	}

	for _, xr := range xp.Registers {
		regs, err := xr.convert()
		if err != nil {
			return nil, fmt.Errorf("peripheral %s: %w", name, err)
		}
		p.Registers = append(p.Registers, regs...)
	}

	return p, nil
}

/* Register arrays (dim) are expanded into one register per index */
func (xr xmlRegister) convert() ([]*Register, error) {
	name := strings.TrimSpace(xr.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: register without name", ErrorMalformedSVD)
	}

	offset, err := parseNumber(xr.AddressOffset)
	if err != nil {
		return nil, fmt.Errorf("%w: register %s addressOffset: %v", ErrorMalformedSVD, name, err)
	}

	var fields []*Field
	for _, xf := range xr.Fields {
		f, err := xf.convert()
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		fields = append(fields, f)
	}

	if strings.TrimSpace(xr.Dim) == "" {
		return []*Register{{
			Name:          name,
			AddressOffset: uint32(offset),
			Fields:        fields,
		}}, nil
	}

	dim, err := parseNumber(xr.Dim)
	if err != nil || dim == 0 {
		return nil, fmt.Errorf("%w: register %s dim %q", ErrorMalformedSVD, name, xr.Dim)
	}
	incr, err := parseNumber(xr.DimIncrement)
	if err != nil {
		return nil, fmt.Errorf("%w: register %s dimIncrement: %v", ErrorMalformedSVD, name, err)
	}
	index, err := dimIndex(xr.DimIndex, int(dim))
	if err != nil {
		return nil, fmt.Errorf("%w: register %s: %v", ErrorMalformedSVD, name, err)
	}

	out := make([]*Register, 0, dim)
	for i, idx := range index {
		n := strings.Replace(name, "[%s]", idx, 1)
		n = strings.Replace(n, "%s", idx, 1)
		out = append(out, &Register{
			Name:          n,
			AddressOffset: uint32(offset + uint64(i)*incr),
			Fields:        fields,
		})
	}
	return out, nil
}

func (xf xmlField) convert() (*Field, error) {
	name := strings.TrimSpace(xf.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: field without name", ErrorMalformedSVD)
	}

	var lsb, msb uint64
	var err error
	switch {
	case strings.TrimSpace(xf.BitRange) != "":
		r := strings.TrimSpace(xf.BitRange)
		if !strings.HasPrefix(r, "[") || !strings.HasSuffix(r, "]") {
			return nil, fmt.Errorf("%w: field %s bitRange %q", ErrorMalformedSVD, name, r)
		}
		hi, lo, ok := strings.Cut(r[1:len(r)-1], ":")
		if !ok {
			return nil, fmt.Errorf("%w: field %s bitRange %q", ErrorMalformedSVD, name, r)
		}
		if msb, err = parseNumber(hi); err != nil {
			return nil, fmt.Errorf("%w: field %s bitRange: %v", ErrorMalformedSVD, name, err)
		}
		if lsb, err = parseNumber(lo); err != nil {
			return nil, fmt.Errorf("%w: field %s bitRange: %v", ErrorMalformedSVD, name, err)
		}

	case strings.TrimSpace(xf.Lsb) != "" || strings.TrimSpace(xf.Msb) != "":
		if lsb, err = parseNumber(xf.Lsb); err != nil {
			return nil, fmt.Errorf("%w: field %s lsb: %v", ErrorMalformedSVD, name, err)
		}
		if msb, err = parseNumber(xf.Msb); err != nil {
			return nil, fmt.Errorf("%w: field %s msb: %v", ErrorMalformedSVD, name, err)
		}

	default:
		if lsb, err = parseNumber(xf.BitOffset); err != nil {
			return nil, fmt.Errorf("%w: field %s bitOffset: %v", ErrorMalformedSVD, name, err)
		}
		width, err := parseNumber(xf.BitWidth)
		if err != nil || width == 0 {
			return nil, fmt.Errorf("%w: field %s bitWidth %q", ErrorMalformedSVD, name, xf.BitWidth)
		}
		msb = lsb + width - 1
	}

	if msb < lsb || msb > 63 {
		return nil, fmt.Errorf("%w: field %s bits [%d:%d]", ErrorMalformedSVD, name, msb, lsb)
	}

	return &Field{
		Name:      name,
		BitOffset: uint32(lsb),
		BitWidth:  uint32(msb - lsb + 1),
	}, nil
}

/* dimIndex is either a range "0-7" or a comma separated list "A,B,C".
 * Without it the indices are 0..dim-1. */
func dimIndex(s string, dim int) ([]string, error) {
	s = strings.TrimSpace(s)

	var out []string
	switch {
	case s == "":
		for i := 0; i < dim; i++ {
			out = append(out, strconv.Itoa(i))
		}

	case strings.Contains(s, ","):
		for _, idx := range strings.Split(s, ",") {
			out = append(out, strings.TrimSpace(idx))
		}

	default:
		from, to, ok := strings.Cut(s, "-")
		if !ok {
			out = []string{s}
			break
		}
		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("dimIndex %q: %v", s, err)
		}
		hi, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("dimIndex %q: %v", s, err)
		}
		for i := lo; i <= hi; i++ {
			out = append(out, strconv.Itoa(i))
		}
	}

	if len(out) != dim {
		return nil, fmt.Errorf("dimIndex %q has %d entries, dim is %d", s, len(out), dim)
	}
	return out, nil
}

/* Numbers are decimal, 0x hexadecimal or # binary */
func parseNumber(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return 0, fmt.Errorf("missing value")
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		return strconv.ParseUint(s[2:], 16, 64)
	case strings.HasPrefix(s, "#"):
		return strconv.ParseUint(s[1:], 2, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
