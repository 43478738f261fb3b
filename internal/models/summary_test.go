package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MegaGrindStone/data-analyzer-ui/internal/models"
)

func TestSummaryRecords(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "Pair", payload: `{"shape": [1200, 8], "Summary": "x"}`, want: "1200 rows × 8 columns"},
		{name: "Number", payload: `{"shape": 42}`, want: "42"},
		{name: "String", payload: `{"shape": "1200 x 8"}`, want: "1200 x 8"},
		{name: "Missing", payload: `{"Summary": "x"}`, want: "N/A"},
		{name: "Null", payload: `{"shape": null}`, want: "N/A"},
		{name: "Empty list", payload: `{"shape": []}`, want: "N/A"},
		{name: "Three dims", payload: `{"shape": [2, 3, 4]}`, want: "2 × 3 × 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s models.Summary
			if err := json.Unmarshal([]byte(tt.payload), &s); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := s.Records(); got != tt.want {
				t.Errorf("Records() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummaryUnmarshalKeepsRaw(t *testing.T) {
	payload := `{"shape": [3, 2], "important_cols": ["age", "income"], "Summary": "**bold**", "extra": true}`

	var s models.Summary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(s.ImportantCols) != 2 || s.ImportantCols[1] != "income" {
		t.Errorf("ImportantCols = %v", s.ImportantCols)
	}
	if s.Summary != "**bold**" {
		t.Errorf("Summary = %q", s.Summary)
	}
	if string(s.Raw) != payload {
		t.Errorf("Raw = %s, want the received payload", s.Raw)
	}
}

func TestRequireCurrentFile(t *testing.T) {
	if nav := models.RequireCurrentFile(""); nav.Proceed() || nav.Redirect != "/" {
		t.Errorf("RequireCurrentFile(\"\") = %+v, want redirect to /", nav)
	}
	if nav := models.RequireCurrentFile("  "); nav.Proceed() {
		t.Errorf("RequireCurrentFile(blank) = %+v, want redirect", nav)
	}
	if nav := models.RequireCurrentFile("sales.csv"); !nav.Proceed() {
		t.Errorf("RequireCurrentFile(sales.csv) = %+v, want proceed", nav)
	}
}

func TestNavItems(t *testing.T) {
	items := models.NavItems("/visualizations")
	if len(items) != 4 {
		t.Fatalf("NavItems() has %d items, want 4", len(items))
	}
	for _, item := range items {
		if want := item.Href == "/visualizations"; item.Active != want {
			t.Errorf("%s.Active = %v, want %v", item.Name, item.Active, want)
		}
	}
	if models.NavItems("/")[0].Active != true {
		t.Error("Home should be active on /")
	}
}

func TestValidateUploadName(t *testing.T) {
	tests := []struct {
		name        string
		unsupported bool
		wantErr     bool
	}{
		{name: "data.csv"},
		{name: "Report.XLSX"},
		{name: "legacy.xls"},
		{name: "notes.txt", unsupported: true, wantErr: true},
		{name: "archive", unsupported: true, wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		err := models.ValidateUploadName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateUploadName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got := errors.Is(err, models.ErrUnsupportedFileType); got != tt.unsupported {
			t.Errorf("ValidateUploadName(%q) unsupported = %v, want %v", tt.name, got, tt.unsupported)
		}
	}
}
