package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SegmentRecord is one time-ordered link segment together with the satellites
// whose interruption exceeded the configured threshold. Satellites is empty
// when the segment had no qualifying interruption.
type SegmentRecord struct {
	Segment    string
	StartTime  string
	EndTime    string
	Satellites Ordered[float64]
}

type segmentBody struct {
	StartTime  json.RawMessage   `json:"start_time"`
	EndTime    json.RawMessage   `json:"end_time"`
	Satellites *Ordered[float64] `json:"satellites"`
}

// SatelliteNames returns satellite names in record order
func (r SegmentRecord) SatelliteNames() []string {
	return r.Satellites.Keys()
}

// MarshalJSON renders the record as {segment: {start_time, end_time, satellites}}
func (r SegmentRecord) MarshalJSON() ([]byte, error) {
	start, _ := json.Marshal(r.StartTime)
	end, _ := json.Marshal(r.EndTime)
	body := segmentBody{StartTime: start, EndTime: end}
	if len(r.Satellites) > 0 {
		sats := r.Satellites
		body.Satellites = &sats
	}
	return json.Marshal(map[string]segmentBody{r.Segment: body})
}

// UnmarshalJSON accepts the single-key object form produced by MarshalJSON
func (r *SegmentRecord) UnmarshalJSON(data []byte) error {
	var outer Ordered[segmentBody]
	if err := json.Unmarshal(data, &outer); err != nil {
		return err
	}
	if len(outer) == 0 {
		return fmt.Errorf("segment record has no segment key")
	}

	e := outer[0]
	r.Segment = e.Key
	r.StartTime = rawToString(e.Value.StartTime)
	r.EndTime = rawToString(e.Value.EndTime)
	r.Satellites = nil
	if e.Value.Satellites != nil {
		r.Satellites = *e.Value.Satellites
	}
	return nil
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// AnomalyBucket labels one class of satellite anomaly
type AnomalyBucket string

const (
	BucketMultiPass      AnomalyBucket = "single_satellite/multi_pass"
	BucketSinglePass     AnomalyBucket = "single_satellite/single_pass"
	BucketMultiSatellite AnomalyBucket = "multi_satellite/joint"
)

// MultiSatelliteNote marks multi-satellite entries whose detailed classification is not implemented
const MultiSatelliteNote = "multi-satellite parameter extraction not yet classified"

// AnomalyEntry is one classified anomaly
type AnomalyEntry struct {
	Satellite  string   `json:"satellite,omitempty"`
	Satellites []string `json:"satellites,omitempty"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	PassCount  int      `json:"pass_count,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// AnomalyReport maps each bucket to its entries in scan order
type AnomalyReport map[AnomalyBucket][]AnomalyEntry

// NewAnomalyReport returns a report with all three buckets present and empty
func NewAnomalyReport() AnomalyReport {
	return AnomalyReport{
		BucketMultiPass:      []AnomalyEntry{},
		BucketSinglePass:     []AnomalyEntry{},
		BucketMultiSatellite: []AnomalyEntry{},
	}
}
