package tracker

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDownloading, true},
		{StatusDownloading, StatusProcessing, true},
		{StatusProcessing, StatusMoving, true},
		{StatusMoving, StatusCompleted, true},
		{StatusQueued, StatusFailed, true},
		{StatusMoving, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusProcessing, StatusDownloading, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusQueued, false},
		{StatusDownloading, StatusDownloading, true},
		{StatusDownloading, "paused", false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_TerminalAndLabel(t *testing.T) {
	terminal := map[Status]bool{
		StatusQueued:      false,
		StatusDownloading: false,
		StatusProcessing:  false,
		StatusMoving:      false,
		StatusCompleted:   true,
		StatusFailed:      true,
		StatusCancelled:   true,
		"paused":          false,
	}
	for s, want := range terminal {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v", s, !want)
		}
	}

	if StatusMoving.Label() != "Moving File" {
		t.Errorf("moving label = %q", StatusMoving.Label())
	}
	if Status("paused").Label() != "paused" {
		t.Errorf("unknown statuses should display verbatim")
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	var resp struct {
		IDs []ID `json:"download_ids"`
	}
	if err := json.Unmarshal([]byte(`{"download_ids":[1, "2", 30]}`), &resp); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := []ID{"1", "2", "30"}
	for i, id := range want {
		if resp.IDs[i] != id {
			t.Errorf("id %d = %q, want %q", i, resp.IDs[i], id)
		}
	}

	var id ID
	if err := json.Unmarshal([]byte(`true`), &id); err == nil {
		t.Error("expected error for boolean id")
	}
}

func TestPayload_Decode(t *testing.T) {
	var p Payload
	body := `{"id":5,"url":"https://x","status":"downloading","progress":12.5,"aspect_ratio":"16:9","target_path":"elsewhere"}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Status == nil || *p.Status != StatusDownloading {
		t.Errorf("status = %v", p.Status)
	}
	if p.Progress == nil || *p.Progress != 12.5 {
		t.Errorf("progress = %v", p.Progress)
	}
	if p.AspectRatio == nil || *p.AspectRatio != "16:9" {
		t.Errorf("aspect = %v", p.AspectRatio)
	}

	var partial Payload
	if err := json.Unmarshal([]byte(`{"status":"queued","progress":null}`), &partial); err != nil {
		t.Fatal(err)
	}
	if partial.Progress != nil || partial.AspectRatio != nil {
		t.Errorf("absent fields should stay nil: %+v", partial)
	}
}

func TestRecord_MarshalJSONAddsDisplayFields(t *testing.T) {
	rec := NewRecord("7", "https://youtu.be/a", "videos/clip.mp4", "clip", time.Unix(0, 0).UTC())
	rec.Status = StatusMoving
	rec.Progress = IndeterminateProgress

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]any{
		"id":            "7",
		"status":        "moving",
		"status_label":  "Moving File",
		"indeterminate": true,
		"display_dir":   "videos",
		"display_name":  "clip",
		"target_path":   "videos/clip.mp4",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %v, want %v", k, fields[k], v)
		}
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if back.ID != rec.ID || back.Status != rec.Status || back.TargetPath != rec.TargetPath {
		t.Errorf("decoded %+v, want %+v", back, rec)
	}
}
