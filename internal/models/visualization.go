package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// DistributionPrefix marks the keys of per-column distribution charts.
	DistributionPrefix = "distribution_"
	// CorrelationKey is the key of the correlation chart.
	CorrelationKey = "correlation"
	// TimeSeriesKey is the key of the time series chart.
	TimeSeriesKey = "time_series"
)

// Chart is one entry of a VisualizationSet. Spec is the chart description handed to the charting library
// unchanged, except that a description delivered as a JSON string is unwrapped into the JSON it holds.
type Chart struct {
	Key   string
	Label string
	Spec  json.RawMessage
}

// VisualizationSet is the chart mapping returned by the visualization service, in the order the service
// sent the keys. Raw keeps the complete payload for download.
type VisualizationSet struct {
	Charts []Chart

	Raw json.RawMessage
}

// ChartGroups is a VisualizationSet sorted into the tabs of the visualization view.
type ChartGroups struct {
	Distribution []Chart
	Correlation  *Chart
	TimeSeries   *Chart
}

// Tab is a tab of the visualization view.
type Tab struct {
	ID    string
	Label string
}

// Tabs lists the visualization view tabs in display order. The first one is the default.
var Tabs = []Tab{
	{ID: "distribution", Label: "Distribution"},
	{ID: "correlation", Label: "Correlation"},
	{ID: "time-series", Label: "Time Series"},
}

// ParseTab returns the tab with the given id, or the default tab for an unknown id.
func ParseTab(id string) Tab {
	for _, t := range Tabs {
		if t.ID == id {
			return t
		}
	}
	return Tabs[0]
}

// UnmarshalJSON decodes a JSON object of chart key to chart description, keeping key order.
func (v *VisualizationSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read visualization set: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("visualization set is not a JSON object")
	}

	var charts []Chart
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read chart key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected chart key %v", tok)
		}

		var spec json.RawMessage
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("failed to read chart %s: %w", key, err)
		}

		charts = append(charts, Chart{
			Key:   key,
			Label: chartLabel(key),
			Spec:  unwrapSpec(spec),
		})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read visualization set: %w", err)
	}

	v.Charts = charts
	v.Raw = bytes.Clone(data)
	return nil
}

// Chart returns the chart stored under key.
func (v VisualizationSet) Chart(key string) (Chart, bool) {
	for _, c := range v.Charts {
		if c.Key == key {
			return c, true
		}
	}
	return Chart{}, false
}

// Group sorts the charts into the view tabs. Keys that are neither distributions nor one of the known
// singletons are not shown.
func (v VisualizationSet) Group() ChartGroups {
	var g ChartGroups
	for _, c := range v.Charts {
		switch {
		case strings.HasPrefix(c.Key, DistributionPrefix):
			g.Distribution = append(g.Distribution, c)
		case c.Key == CorrelationKey:
			g.Correlation = &c
		case c.Key == TimeSeriesKey:
			g.TimeSeries = &c
		}
	}
	return g
}

func chartLabel(key string) string {
	switch key {
	case CorrelationKey:
		return "Correlation"
	case TimeSeriesKey:
		return "Time Series"
	}
	return strings.ReplaceAll(strings.TrimPrefix(key, DistributionPrefix), "_", " ")
}

func unwrapSpec(spec json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(spec)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return spec
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil || !json.Valid([]byte(s)) {
		return spec
	}
	return json.RawMessage(s)
}
