package webshare

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const statusOK = "OK"

// response covers every API call; each endpoint fills only its own elements.
type response struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status"`
	Code    string   `xml:"code"`
	Message string   `xml:"message"`

	Salt  string `xml:"salt"`
	Token string `xml:"token"`
	Link  string `xml:"link"`
	Name  string `xml:"name"`
	Size  int64  `xml:"size"`

	Total int        `xml:"total"`
	Files []fileItem `xml:"file"`
}

type fileItem struct {
	Ident         string `xml:"ident"`
	Name          string `xml:"name"`
	Type          string `xml:"type"`
	Img           string `xml:"img"`
	Size          int64  `xml:"size"`
	PositiveVotes int    `xml:"positive_votes"`
	NegativeVotes int    `xml:"negative_votes"`
	Password      string `xml:"password"`
}

// SearchResult is one search hit as served to the front end.
type SearchResult struct {
	Ident         string `json:"ident"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
	PositiveVotes int    `json:"positive_votes"`
	NegativeVotes int    `json:"negative_votes"`
	Img           string `json:"img,omitempty"`
	Password      bool   `json:"password"`
}

// FileLink is what a download needs to start streaming.
type FileLink struct {
	URL  string
	Size int64
	Name string
}

func (f fileItem) result() SearchResult {
	protected, _ := strconv.ParseBool(strings.TrimSpace(f.Password))
	return SearchResult{
		Ident:         f.Ident,
		Name:          f.Name,
		Type:          f.Type,
		Size:          f.Size,
		SizeFormatted: FormatSize(f.Size),
		PositiveVotes: f.PositiveVotes,
		NegativeVotes: f.NegativeVotes,
		Img:           f.Img,
		Password:      protected,
	}
}

// FormatSize renders a byte count for display, e.g. "1.5 GiB".
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
