package slots

import (
	"context"
	"encoding/json"

	"github.com/ppiankov/intentra/internal/model"
	"go.uber.org/zap"
)

const (
	// NameAnomaly is the name of the satellite anomaly filler
	NameAnomaly = "anomaly_slot_filler"

	// SlotAnomalies receives the AnomalyReport
	SlotAnomalies = "anomalies"
)

// Anomaly classifies the record batch in metadata into satellite anomaly buckets
type Anomaly struct {
	logger *zap.Logger
}

// NewAnomaly creates the anomaly filler
func NewAnomaly(logger *zap.Logger) *Anomaly {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anomaly{logger: logger.Named("slots.anomaly")}
}

// Name returns "anomaly_slot_filler"
func (a *Anomaly) Name() string {
	return NameAnomaly
}

// FillSlots writes slots["anomalies"] from metadata["data"]. An empty batch
// leaves the result unchanged, and an existing anomalies slot is kept.
func (a *Anomaly) FillSlots(_ context.Context, res *model.IntentResult, _ string, _ model.Context) *model.IntentResult {
	records, err := RecordsFrom(res.Metadata[model.MetaRecords])
	if err != nil {
		a.logger.Warn("Record batch unreadable, anomalies not classified", zap.Error(err))
		return res
	}
	if len(records) == 0 {
		return res
	}
	if res.HasSlot(SlotAnomalies) {
		a.logger.Warn("Anomalies slot already set, keeping existing value",
			zap.String("intent", res.Intent))
		return res
	}

	res.SetSlot(SlotAnomalies, Classify(records))
	return res
}

// RecordsFrom accepts the record batch as produced by the sheet recognizer or
// as decoded from JSON
func RecordsFrom(v any) ([]model.SegmentRecord, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []model.SegmentRecord:
		return t, nil
	case []*model.SegmentRecord:
		out := make([]model.SegmentRecord, 0, len(t))
		for _, r := range t {
			if r != nil {
				out = append(out, *r)
			}
		}
		return out, nil
	case []any, []map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var records []model.SegmentRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, err
		}
		return records, nil
	default:
		return nil, nil
	}
}

// Classify scans records in order. A run of consecutive records naming the
// same single satellite becomes one multi-pass entry; a lone single-satellite
// record is a single-pass entry; records with several satellites are joint
// anomalies. Records without satellites are skipped.
func Classify(records []model.SegmentRecord) model.AnomalyReport {
	report := model.NewAnomalyReport()

	for i := 0; i < len(records); {
		rec := records[i]
		switch n := len(rec.Satellites); {
		case n == 0:
			i++

		case n > 1:
			report[model.BucketMultiSatellite] = append(report[model.BucketMultiSatellite], model.AnomalyEntry{
				Satellites: rec.SatelliteNames(),
				StartTime:  rec.StartTime,
				EndTime:    rec.EndTime,
				Note:       model.MultiSatelliteNote,
			})
			i++

		default:
			name := rec.Satellites[0].Key
			end := i
			for end+1 < len(records) {
				next, ok := soleSatellite(records[end+1])
				if !ok || next != name {
					break
				}
				end++
			}

			if end > i {
				report[model.BucketMultiPass] = append(report[model.BucketMultiPass], model.AnomalyEntry{
					Satellite: name,
					StartTime: rec.StartTime,
					EndTime:   records[end].EndTime,
					PassCount: end - i + 1,
				})
			} else {
				report[model.BucketSinglePass] = append(report[model.BucketSinglePass], model.AnomalyEntry{
					Satellite: name,
					StartTime: rec.StartTime,
					EndTime:   rec.EndTime,
				})
			}
			i = end + 1
		}
	}

	return report
}

func soleSatellite(r model.SegmentRecord) (string, bool) {
	if len(r.Satellites) != 1 {
		return "", false
	}
	return r.Satellites[0].Key, true
}
