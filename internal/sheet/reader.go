// Package sheet turns link-segment interruption spreadsheets into record batches.
package sheet

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/xuri/excelize/v2"
)

// Layout types. Standardized sheets are filtered by the segment pattern.
const (
	TypeMerged       = "merged"
	TypeStandardized = "standardized"
)

// DefaultSegmentPattern matches standardized segment names
const DefaultSegmentPattern = `^(\d{8}-\d+-\d+-\d+-\d+-CSCN-[AB]\d{4}-CSCN-[AB]\d{4})$`

// ErrMissingColumn is returned when the header row lacks a required column
var ErrMissingColumn = errors.New("required column not found")

// Columns names the header cells the reader looks for
type Columns struct {
	Segment   string `json:"segment" yaml:"segment"`
	Start     string `json:"start" yaml:"start"`
	End       string `json:"end" yaml:"end"`
	Satellite string `json:"satellite" yaml:"satellite"`
	Duration  string `json:"duration" yaml:"duration"`
}

// DefaultColumns returns the header names used by the source workbooks
func DefaultColumns() Columns {
	return Columns{
		Segment:   "联通子段名称",
		Start:     "理论开始时间",
		End:       "理论结束时间",
		Satellite: "子段卫星名称",
		Duration:  "中断时长",
	}
}

// withDefaults fills unset column names
func (c Columns) withDefaults() Columns {
	def := DefaultColumns()
	if c.Segment == "" {
		c.Segment = def.Segment
	}
	if c.Start == "" {
		c.Start = def.Start
	}
	if c.End == "" {
		c.End = def.End
	}
	if c.Satellite == "" {
		c.Satellite = def.Satellite
	}
	if c.Duration == "" {
		c.Duration = def.Duration
	}
	return c
}

// Options controls how rows become records
type Options struct {
	Type                 string
	DurationThreshold    float64 // seconds
	IgnoreNoInterruption bool
	SegmentPattern       string
	Columns              Columns
}

// Read opens a workbook and parses one sheet
func Read(path, sheetName string, opts Options) ([]model.SegmentRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	return ParseRows(rows, opts)
}

var leadingNumber = regexp.MustCompile(`^([0-9.]+)`)

// ParseDuration extracts the total interruption minutes from cells such as
// "1.0(0.15,0.15,0.7)". It reports false when no number leads the cell.
func ParseDuration(cell string) (float64, bool) {
	m := leadingNumber.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseRows converts a header row plus data rows into records ordered by
// start time. Segment name and times are forward-filled to undo merged cells.
func ParseRows(rows [][]string, opts Options) ([]model.SegmentRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := opts.Columns.withDefaults()

	idx, err := headerIndex(rows[0], cols)
	if err != nil {
		return nil, err
	}

	var filter *regexp.Regexp
	if opts.Type == TypeStandardized && opts.SegmentPattern != "" {
		filter, err = regexp.Compile(opts.SegmentPattern)
		if err != nil {
			return nil, fmt.Errorf("segment pattern: %w", err)
		}
	}

	thresholdMinutes := opts.DurationThreshold / 60

	var (
		order     []string
		bySegment = make(map[string]*model.SegmentRecord)
		segment   string
		start     string
		end       string
	)

	for _, row := range rows[1:] {
		if v := cell(row, idx.segment); v != "" {
			segment = v
		}
		if v := cell(row, idx.start); v != "" {
			start = v
		}
		if v := cell(row, idx.end); v != "" {
			end = v
		}
		if segment == "" {
			continue
		}
		if filter != nil && !filter.MatchString(segment) {
			continue
		}

		minutes, ok := ParseDuration(cell(row, idx.duration))
		qualifies := ok && minutes > thresholdMinutes
		satellite := cell(row, idx.satellite)

		rec, seen := bySegment[segment]
		if !seen {
			if opts.IgnoreNoInterruption && !qualifies {
				continue
			}
			rec = &model.SegmentRecord{Segment: segment, StartTime: start, EndTime: end}
			bySegment[segment] = rec
			order = append(order, segment)
		}
		if qualifies && satellite != "" {
			rec.Satellites = setSatellite(rec.Satellites, satellite, minutes)
		}
	}

	records := make([]model.SegmentRecord, 0, len(order))
	for _, name := range order {
		records = append(records, *bySegment[name])
	}
	sortByStart(records)
	return records, nil
}

type columnIndex struct {
	segment, start, end, satellite, duration int
}

func headerIndex(header []string, cols Columns) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	var missing []string
	find := func(name string) int {
		i, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	idx := columnIndex{
		segment:   find(cols.Segment),
		start:     find(cols.Start),
		end:       find(cols.End),
		satellite: find(cols.Satellite),
		duration:  find(cols.Duration),
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// setSatellite records minutes for name; a repeated name keeps its position
func setSatellite(sats model.Ordered[float64], name string, minutes float64) model.Ordered[float64] {
	for i := range sats {
		if sats[i].Key == name {
			sats[i].Value = minutes
			return sats
		}
	}
	return append(sats, model.Entry[float64]{Key: name, Value: minutes})
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"1/2/06 15:04",
	time.RFC3339,
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortByStart orders records by start time, comparing parsed times when both
// parse and the raw text otherwise. Equal starts are ordered by segment name.
func sortByStart(records []model.SegmentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.StartTime != b.StartTime {
			ta, okA := parseTime(a.StartTime)
			tb, okB := parseTime(b.StartTime)
			if okA && okB {
				if !ta.Equal(tb) {
					return ta.Before(tb)
				}
			} else {
				return a.StartTime < b.StartTime
			}
		}
		return a.Segment < b.Segment
	})
}
