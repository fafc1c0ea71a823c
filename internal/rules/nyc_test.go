package rules

import (
	"testing"

	"civicetl/internal/records"
)

// annotate runs the full NYC battery over a single-column slice of rows and
// returns the reason strings in row order.
func annotate(t *testing.T, b *records.Batch) []string {
	t.Helper()
	out := Evaluate(b, NYC311Ruleset(), nil)
	reasons := make([]string, out.Len())
	for i, r := range out.Rows {
		reasons[i] = r[records.ColDropReason].(string)
	}
	return reasons
}

func TestNYCUniqueKeyRules(t *testing.T) {
	b := &records.Batch{
		Columns: []string{"unique_key", "status"},
		Rows: []records.Record{
			{"unique_key": "100", "status": "OPEN"},
			{"unique_key": nil, "status": "OPEN"},
			{"unique_key": "100", "status": "IN PROGRESS"},
			{"unique_key": "100", "status": "IN PROGRESS"},
		},
	}
	reasons := annotate(t, b)

	if reasons[0] != "" {
		t.Fatalf("row 0 (first occurrence) = %q; want clean", reasons[0])
	}
	if reasons[1] != "unique_key null" {
		t.Fatalf("row 1 = %q", reasons[1])
	}
	if reasons[2] != "unique_key duplicate" {
		t.Fatalf("row 2 = %q", reasons[2])
	}
	// Row 3 repeats row 2 exactly, so both duplicate rules fire.
	if reasons[3] != "full-row duplicate; unique_key duplicate" {
		t.Fatalf("row 3 = %q", reasons[3])
	}
}

func TestNYCDateRules(t *testing.T) {
	tests := []struct {
		name string
		row  records.Record
		want string
	}{
		{
			name: "clean",
			row: records.Record{
				"created_date": "2024-03-15 08:00:00",
				"closed_date":  "2024-03-15 09:00:00",
			},
			want: "",
		},
		{
			name: "created unparsable",
			row: records.Record{
				"created_date": "15th of March",
				"closed_date":  "2024-03-15 09:00:00",
			},
			want: "created_date unparsable",
		},
		{
			name: "closed before created",
			row: records.Record{
				"created_date": "2024-03-15 08:00:00",
				"closed_date":  "2024-03-14 09:00:00",
			},
			want: "closed_date before created_date",
		},
		{
			name: "absent closed date is fine",
			row: records.Record{
				"created_date": "2024-03-15 08:00:00",
				"closed_date":  nil,
			},
			want: "",
		},
		{
			name: "empty string counts as absent",
			row: records.Record{
				"created_date": "2024-03-15 08:00:00",
				"closed_date":  "",
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &records.Batch{Columns: []string{"created_date", "closed_date"}, Rows: []records.Record{tt.row}}
			if got := annotate(t, b)[0]; got != tt.want {
				t.Fatalf("reason = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNYCResolutionDateRule(t *testing.T) {
	b := &records.Batch{
		Columns: []string{"created_date", "resolution_action_updated_date"},
		Rows: []records.Record{
			{"created_date": "2024-03-15 08:00:00", "resolution_action_updated_date": "2024-03-10 00:00:00"},
		},
	}
	if got := annotate(t, b)[0]; got != "resolution_action_updated_date before created_date" {
		t.Fatalf("reason = %q", got)
	}
}

func TestNYCStatusClosedConsistency(t *testing.T) {
	tests := []struct {
		name   string
		status string
		closed any
		want   string
	}{
		{name: "closed with date", status: "CLOSED", closed: "2024-03-15 09:00:00", want: ""},
		{name: "resolved counts as closed", status: "Resolved", closed: "2024-03-15 09:00:00", want: ""},
		{name: "open without date", status: "OPEN", closed: nil, want: ""},
		{name: "open with date", status: "OPEN", closed: "2024-03-15 09:00:00", want: "closed_date set but status not closed"},
		{name: "closed without date", status: "CLOSED", closed: nil, want: "closed status but closed_date missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &records.Batch{
				Columns: []string{"status", "closed_date"},
				Rows:    []records.Record{{"status": tt.status, "closed_date": tt.closed}},
			}
			if got := annotate(t, b)[0]; got != tt.want {
				t.Fatalf("reason = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNYCGeoRules(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon any
		want     string
	}{
		{name: "inside", lat: "40.73", lon: "-73.99", want: ""},
		{name: "both absent", lat: nil, lon: nil, want: ""},
		{name: "lat too far south", lat: "39.5", lon: "-73.99", want: "latitude outside NYC"},
		{name: "lon too far west", lat: "40.73", lon: "-75.5", want: "longitude outside NYC"},
		{name: "lat without lon", lat: "40.73", lon: nil, want: "lat present xor lon present"},
		{name: "lon without lat", lat: "", lon: "-73.99", want: "lat present xor lon present"},
		{
			name: "out of bounds and unpaired",
			lat:  "39.5", lon: nil,
			want: "lat present xor lon present; latitude outside NYC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &records.Batch{
				Columns: []string{"latitude", "longitude"},
				Rows:    []records.Record{{"latitude": tt.lat, "longitude": tt.lon}},
			}
			if got := annotate(t, b)[0]; got != tt.want {
				t.Fatalf("reason = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNYCStatePlaneRules(t *testing.T) {
	b := &records.Batch{
		Columns: []string{"x_coordinate_state_plane_", "y_coordinate_state_plane_"},
		Rows: []records.Record{
			{"x_coordinate_state_plane_": "1000000", "y_coordinate_state_plane_": "200000"},
			{"x_coordinate_state_plane_": "899999", "y_coordinate_state_plane_": "200000"},
			{"x_coordinate_state_plane_": "1000000", "y_coordinate_state_plane_": "300000"},
		},
	}
	reasons := annotate(t, b)

	if reasons[0] != "" {
		t.Fatalf("row 0 = %q", reasons[0])
	}
	if reasons[1] != "x_coordinate_state_plane_ out of bounds" {
		t.Fatalf("row 1 = %q", reasons[1])
	}
	if reasons[2] != "y_coordinate_state_plane_ out of bounds" {
		t.Fatalf("row 2 = %q", reasons[2])
	}
}

func TestNYCZipRules(t *testing.T) {
	tests := []struct {
		name string
		zip  any
		want string
	}{
		{name: "valid", zip: "10001", want: ""},
		{name: "upper edge", zip: "11697", want: ""},
		{name: "absent", zip: nil, want: ""},
		{name: "blank", zip: "   ", want: ""},
		{name: "not five digits", zip: "1000", want: "incident_zip not 5-digit"},
		{name: "letters", zip: "1OOO1", want: "incident_zip not 5-digit"},
		{name: "zip+4", zip: "10001-1234", want: "incident_zip not 5-digit"},
		{name: "below range", zip: "10000", want: "incident_zip outside NYC range"},
		{name: "above range", zip: "11698", want: "incident_zip outside NYC range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &records.Batch{
				Columns: []string{"incident_zip"},
				Rows:    []records.Record{{"incident_zip": tt.zip}},
			}
			if got := annotate(t, b)[0]; got != tt.want {
				t.Fatalf("reason = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNYCBoroughRule(t *testing.T) {
	tests := []struct {
		name    string
		borough any
		want    string
	}{
		{name: "canonical", borough: "BROOKLYN", want: ""},
		{name: "case and padding tolerated", borough: "  staten island ", want: ""},
		{name: "unspecified is legal", borough: "UNSPECIFIED", want: ""},
		{name: "absent", borough: nil, want: ""},
		{name: "unexpected", borough: "YONKERS", want: "borough unexpected value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &records.Batch{
				Columns: []string{"borough"},
				Rows:    []records.Record{{"borough": tt.borough}},
			}
			if got := annotate(t, b)[0]; got != tt.want {
				t.Fatalf("reason = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestNYCAllCleanBatch(t *testing.T) {
	rep := &captureReporter{}
	b := &records.Batch{
		Columns: []string{
			"unique_key", "created_date", "closed_date", "status",
			"latitude", "longitude", "incident_zip", "borough",
		},
		Rows: []records.Record{
			{
				"unique_key": "1", "created_date": "2024-03-15 08:00:00",
				"closed_date": "2024-03-15 09:00:00", "status": "CLOSED",
				"latitude": "40.73", "longitude": "-73.99",
				"incident_zip": "10001", "borough": "MANHATTAN",
			},
			{
				"unique_key": "2", "created_date": "2024-03-15 10:00:00",
				"closed_date": nil, "status": "OPEN",
				"latitude": nil, "longitude": nil,
				"incident_zip": "11201", "borough": "BROOKLYN",
			},
		},
	}
	out := Evaluate(b, NYC311Ruleset(), rep)

	for i, r := range out.Rows {
		if r[records.ColDropFlag] != false || r[records.ColDropReason] != "" {
			t.Fatalf("row %d flagged: %v", i, r)
		}
	}
	if rep.totalFlagged != 0 || len(rep.counts) != 0 {
		t.Fatalf("summary = (%d, %v); want all clean", rep.totalFlagged, rep.counts)
	}
}
