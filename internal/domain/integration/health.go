package integration

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IntegrationHealth Value Objects
// ---------------------------------------------------------------------------

// HealthStatus is the qualitative band for a 0-100 score
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
)

// HealthStatusFor maps a score to its band: excellent >= 90, good >= 70,
// fair >= 50, poor below.
func HealthStatusFor(score int) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 70:
		return HealthGood
	case score >= 50:
		return HealthFair
	default:
		return HealthPoor
	}
}

// Trend describes the direction a sub-metric is moving
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// HealthMetric is one scored sub-metric
type HealthMetric struct {
	// Name identifies the sub-metric
	Name string `json:"name"`
	// Score is the 0-100 score
	Score int `json:"score"`
	// Status is the qualitative band for the score
	Status HealthStatus `json:"status"`
	// Trend is the movement direction over the window
	Trend Trend `json:"trend"`
}

// IntegrationHealth is the derived health report for one integration.
// Recreated on each check, never mutated in place.
type IntegrationHealth struct {
	// IntegrationID is the integration this report describes
	IntegrationID uuid.UUID `json:"integration_id"`
	// OverallScore is the rounded weighted mean of the sub-metrics
	OverallScore int `json:"overall_score"`
	// Status is the band for the overall score
	Status HealthStatus `json:"status"`
	// Connection scores connection stability
	Connection HealthMetric `json:"connection"`
	// DataQuality scores data-quality violations
	DataQuality HealthMetric `json:"data_quality"`
	// Performance scores sync latency
	Performance HealthMetric `json:"performance"`
	// ErrorRate scores the failure ratio over the window
	ErrorRate HealthMetric `json:"error_rate"`
	// Recommendations are generated for sub-metrics below good
	Recommendations []string `json:"recommendations,omitempty"`
	// CheckedAt is when the report was computed
	CheckedAt time.Time `json:"checked_at"`
}

// Sub-metric weights, fixed by design.
const (
	weightConnection  = 0.3
	weightDataQuality = 0.3
	weightPerformance = 0.2
	weightErrorRate   = 0.2
)

// ---------------------------------------------------------------------------
// HealthScorer
// ---------------------------------------------------------------------------

// HealthScorer computes IntegrationHealth reports from recent event history.
type HealthScorer struct {
	// Window is the trailing window events are scored over
	Window time.Duration
	// SlowSyncThreshold is the duration above which a sync counts as slow
	SlowSyncThreshold time.Duration
}

// NewHealthScorer returns a scorer with the default trailing window
func NewHealthScorer() *HealthScorer {
	return &HealthScorer{
		Window:            24 * time.Hour,
		SlowSyncThreshold: 2 * time.Minute,
	}
}

// Score computes a fresh health report for the integration from recent events.
// Events outside the trailing window are ignored.
func (h *HealthScorer) Score(integ *Integration, events []IntegrationEvent) *IntegrationHealth {
	cutoff := time.Now().Add(-h.Window)
	recent := make([]IntegrationEvent, 0, len(events))
	for _, e := range events {
		if e.OccurredAt.After(cutoff) {
			recent = append(recent, e)
		}
	}

	connection := h.scoreConnection(integ, recent)
	quality := h.scoreDataQuality(recent)
	performance := h.scorePerformance(recent)
	errorRate := h.scoreErrorRate(recent)

	return h.Compose(integ.ID, connection, quality, performance, errorRate)
}

// Compose rolls four sub-metrics into a full report. Split out so dashboards
// can re-aggregate stored sub-metric scores without event history.
func (h *HealthScorer) Compose(integrationID uuid.UUID, connection, quality, performance, errorRate HealthMetric) *IntegrationHealth {
	overall := int(math.Round(
		float64(connection.Score)*weightConnection +
			float64(quality.Score)*weightDataQuality +
			float64(performance.Score)*weightPerformance +
			float64(errorRate.Score)*weightErrorRate))

	report := &IntegrationHealth{
		IntegrationID: integrationID,
		OverallScore:  overall,
		Status:        HealthStatusFor(overall),
		Connection:    connection,
		DataQuality:   quality,
		Performance:   performance,
		ErrorRate:     errorRate,
		CheckedAt:     time.Now(),
	}
	report.Recommendations = recommendations(connection, quality, performance, errorRate)
	return report
}

// scoreConnection scores connection stability: disconnections and lost
// connections in the window drag the score down from 100.
func (h *HealthScorer) scoreConnection(integ *Integration, events []IntegrationEvent) HealthMetric {
	score := 100
	if integ.Status == StatusError {
		score = 20
	} else if integ.Status == StatusDisconnected {
		score = 50
	}
	for _, e := range events {
		if e.Type == EventConnectionLost {
			score -= 25
		}
	}
	return metric("connection", clampScore(score), trendFor(events, EventConnectionLost))
}

// scoreDataQuality scores mapping/data violations: failed records as a share
// of processed records in completed syncs.
func (h *HealthScorer) scoreDataQuality(events []IntegrationEvent) HealthMetric {
	var processed, failed int
	for _, e := range events {
		if e.Type == EventSyncCompleted || e.Type == EventSyncFailed {
			processed += e.RecordsProcessed
		}
		if e.Type == EventConflictDeferred {
			failed++
		}
	}
	score := 100
	if processed > 0 {
		score = 100 - int(math.Round(float64(failed)/float64(processed)*100))
	} else if failed > 0 {
		score = 60
	}
	return metric("data_quality", clampScore(score), TrendStable)
}

// scorePerformance scores sync latency against the slow-sync threshold.
func (h *HealthScorer) scorePerformance(events []IntegrationEvent) HealthMetric {
	var total, slow int
	for _, e := range events {
		if e.Type != EventSyncCompleted || e.Duration == 0 {
			continue
		}
		total++
		if e.Duration > h.SlowSyncThreshold {
			slow++
		}
	}
	score := 100
	if total > 0 {
		score = 100 - int(math.Round(float64(slow)/float64(total)*60))
	}
	return metric("performance", clampScore(score), TrendStable)
}

// scoreErrorRate scores the sync failure ratio over the window.
func (h *HealthScorer) scoreErrorRate(events []IntegrationEvent) HealthMetric {
	var total, failures int
	for _, e := range events {
		switch e.Type {
		case EventSyncCompleted:
			total++
		case EventSyncFailed:
			total++
			failures++
		}
	}
	score := 100
	if total > 0 {
		score = 100 - int(math.Round(float64(failures)/float64(total)*100))
	}
	return metric("error_rate", clampScore(score), trendFor(events, EventSyncFailed))
}

// trendFor compares bad-event density between the older and newer half of the
// window to call a direction.
func trendFor(events []IntegrationEvent, bad EventType) Trend {
	if len(events) < 2 {
		return TrendStable
	}
	var oldest, newest time.Time
	for _, e := range events {
		if oldest.IsZero() || e.OccurredAt.Before(oldest) {
			oldest = e.OccurredAt
		}
		if e.OccurredAt.After(newest) {
			newest = e.OccurredAt
		}
	}
	mid := oldest.Add(newest.Sub(oldest) / 2)
	var early, late int
	for _, e := range events {
		if e.Type != bad {
			continue
		}
		if e.OccurredAt.Before(mid) {
			early++
		} else {
			late++
		}
	}
	switch {
	case late > early:
		return TrendDeclining
	case early > late:
		return TrendImproving
	default:
		return TrendStable
	}
}

func metric(name string, score int, trend Trend) HealthMetric {
	return HealthMetric{Name: name, Score: score, Status: HealthStatusFor(score), Trend: trend}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// recommendations generates advice for every sub-metric below good.
func recommendations(metrics ...HealthMetric) []string {
	var out []string
	for _, m := range metrics {
		if m.Score >= 70 {
			continue
		}
		switch m.Name {
		case "connection":
			out = append(out, "Connection is unstable: re-test credentials and check provider availability")
		case "data_quality":
			out = append(out, "Data quality is degraded: review field mappings and pending conflicts")
		case "performance":
			out = append(out, "Syncs are running slow: reduce selected objects or lower sync frequency")
		case "error_rate":
			out = append(out, fmt.Sprintf("Error rate is elevated (score %d): inspect recent sync failures", m.Score))
		}
	}
	return out
}
