package archive

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ComicInfo is the subset of the ComicInfo.xml schema comicshelf reads and
// writes.
type ComicInfo struct {
	XMLName   xml.Name `xml:"ComicInfo"`
	Title     string   `xml:"Title,omitempty"`
	Series    string   `xml:"Series,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Volume    string   `xml:"Volume,omitempty"`
	Publisher string   `xml:"Publisher,omitempty"`
	Year      int      `xml:"Year,omitempty"`
	Month     int      `xml:"Month,omitempty"`
	PageCount int      `xml:"PageCount,omitempty"`
	Web       string   `xml:"Web,omitempty"`
}

// DecodeComicInfo parses a ComicInfo.xml document.
func DecodeComicInfo(r io.Reader) (*ComicInfo, error) {
	var info ComicInfo
	if err := xml.NewDecoder(r).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode ComicInfo.xml: %w", err)
	}
	return &info, nil
}

// Encode writes the document with an XML header.
func (c *ComicInfo) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode ComicInfo.xml: %w", err)
	}
	return enc.Close()
}

// CoverDate renders Year and Month as YYYY-MM, or YYYY when the month is
// unknown.
func (c *ComicInfo) CoverDate() string {
	if c == nil || c.Year <= 0 {
		return ""
	}
	if c.Month >= 1 && c.Month <= 12 {
		return fmt.Sprintf("%04d-%02d", c.Year, c.Month)
	}
	return strconv.Itoa(c.Year)
}

// SetCoverDate parses YYYY or YYYY-MM into Year and Month.
func (c *ComicInfo) SetCoverDate(value string) {
	parts := strings.SplitN(strings.TrimSpace(value), "-", 3)
	if len(parts) == 0 {
		return
	}
	if year, err := strconv.Atoi(parts[0]); err == nil {
		c.Year = year
	}
	if len(parts) > 1 {
		if month, err := strconv.Atoi(parts[1]); err == nil {
			c.Month = month
		}
	}
}
