package iiod

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/rjboer/GoPluto/iio"
)

// contextXML is the context description returned by PRINT. It covers the
// fields emitted by Pluto firmware v0.25 through v0.38.
type contextXML struct {
	XMLName      xml.Name      `xml:"context"`
	Name         string        `xml:"name,attr"`
	VersionMajor string        `xml:"version-major,attr"`
	VersionMinor string        `xml:"version-minor,attr"`
	VersionGit   string        `xml:"version-git,attr"`
	Description  string        `xml:"description,attr"`
	Attributes   []contextAttr `xml:"context-attribute"`
	Devices      []deviceXML   `xml:"device"`
}

type contextAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type deviceXML struct {
	ID    string `xml:"id,attr"`
	Name  string `xml:"name,attr"`
	Label string `xml:"label,attr"` // not always present

	Channels    []channelXML `xml:"channel"`
	Attributes  []attrXML    `xml:"attribute"`
	DebugAttrs  []attrXML    `xml:"debug-attribute"`
	BufferAttrs []attrXML    `xml:"buffer-attribute"`
}

type channelXML struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"` // input | output

	Attributes  []attrXML       `xml:"attribute"`
	ScanElement *scanElementXML `xml:"scan-element"`
}

type attrXML struct {
	Name     string `xml:"name,attr"`
	Filename string `xml:"filename,attr"`
}

type scanElementXML struct {
	Index  string `xml:"index,attr"`
	Format string `xml:"format,attr"`
	Scale  string `xml:"scale,attr"`
}

func parseContextXML(data []byte) (*contextXML, error) {
	var doc contextXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("context xml: %w: %w", iio.ErrParse, err)
	}
	return &doc, nil
}

func (c *contextXML) version() (major, minor uint, git string, ok bool) {
	ma, err1 := strconv.ParseUint(c.VersionMajor, 10, 32)
	mi, err2 := strconv.ParseUint(c.VersionMinor, 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, "", false
	}
	return uint(ma), uint(mi), c.VersionGit, true
}

// scanFormat decodes the scan-element of a channel. Channels that are not
// scan elements return ok == false.
func (ch *channelXML) scanFormat() (index int, f iio.DataFormat, ok bool, err error) {
	se := ch.ScanElement
	if se == nil {
		return -1, iio.DataFormat{}, false, nil
	}
	index, err = strconv.Atoi(se.Index)
	if err != nil || index < 0 {
		return -1, f, false, fmt.Errorf("channel %s scan index %q: %w", ch.ID, se.Index, iio.ErrParse)
	}
	f, err = iio.ParseDataFormat(se.Format)
	if err != nil {
		return -1, f, false, fmt.Errorf("channel %s: %w", ch.ID, err)
	}
	if se.Scale != "" {
		s, err := strconv.ParseFloat(se.Scale, 64)
		if err != nil {
			return -1, f, false, fmt.Errorf("channel %s scale %q: %w", ch.ID, se.Scale, iio.ErrParse)
		}
		f.WithScale = true
		f.Scale = s
	}
	return index, f, true, nil
}

func attrNames(attrs []attrXML) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}
