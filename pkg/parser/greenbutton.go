package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Green Button feeds carry interval energy readings per usage point.
// The reader flattens each interval reading into one row so the rest
// of the pipeline treats the feed like any tabular upload.

var greenButtonHeaders = []string{
	"Usage Point",
	"Service Kind",
	"Interval Start",
	"Interval Duration",
	"Value",
}

type gbFeed struct {
	Entries []gbEntry `xml:"entry"`
}

type gbEntry struct {
	Title   string    `xml:"title"`
	Content gbContent `xml:"content"`
}

type gbContent struct {
	UsagePoint    *gbUsagePoint    `xml:"UsagePoint"`
	IntervalBlock *gbIntervalBlock `xml:"IntervalBlock"`
}

type gbUsagePoint struct {
	ServiceKind string `xml:"ServiceCategory>kind"`
}

type gbIntervalBlock struct {
	Readings []gbIntervalReading `xml:"IntervalReading"`
}

type gbIntervalReading struct {
	Start    int64 `xml:"timePeriod>start"`
	Duration int64 `xml:"timePeriod>duration"`
	Value    int64 `xml:"value"`
}

// GreenButtonReader yields rows parsed from a Green Button XML feed.
type GreenButtonReader struct {
	rows []map[string]string
	pos  int
}

// NewGreenButtonReader parses a whole feed up front. Feeds are small
// compared to tabular uploads so buffering all rows is fine.
func NewGreenButtonReader(r io.Reader) (*GreenButtonReader, error) {
	var feed gbFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse green button feed: %w", err)
	}

	usagePoint := ""
	serviceKind := ""
	var rows []map[string]string
	for _, entry := range feed.Entries {
		if entry.Content.UsagePoint != nil {
			usagePoint = entry.Title
			serviceKind = entry.Content.UsagePoint.ServiceKind
			continue
		}
		if entry.Content.IntervalBlock == nil {
			continue
		}
		for _, reading := range entry.Content.IntervalBlock.Readings {
			rows = append(rows, map[string]string{
				"Usage Point":       usagePoint,
				"Service Kind":      serviceKind,
				"Interval Start":    time.Unix(reading.Start, 0).UTC().Format(time.RFC3339),
				"Interval Duration": strconv.FormatInt(reading.Duration, 10),
				"Value":             strconv.FormatInt(reading.Value, 10),
			})
		}
	}

	return &GreenButtonReader{rows: rows}, nil
}

// Headers returns the flattened feed columns.
func (r *GreenButtonReader) Headers() []string {
	return greenButtonHeaders
}

// Next returns the next flattened interval reading.
func (r *GreenButtonReader) Next() (map[string]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}
