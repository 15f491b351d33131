package provider

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeOutput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "absent", raw: "", want: []string{}},
		{name: "null", raw: "null", want: []string{}},
		{name: "single string", raw: `"https://cdn/out.jpg"`, want: []string{"https://cdn/out.jpg"}},
		{name: "empty string", raw: `""`, want: []string{}},
		{name: "array", raw: `["https://cdn/a.jpg","https://cdn/b.jpg"]`, want: []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}},
		{name: "array with blanks", raw: `["https://cdn/a.jpg",""," "]`, want: []string{"https://cdn/a.jpg"}},
		{name: "empty array", raw: `[]`, want: []string{}},
		{name: "object", raw: `{"weird":"shape"}`, want: []string{}},
		{name: "number", raw: `42`, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeOutput(json.RawMessage(tc.raw))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("NormalizeOutput(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseCallback(t *testing.T) {
	body := []byte(`{"id":"pred-1","status":"Succeeded","output":"https://cdn/out.jpg","created_at":"2026-01-01T00:00:00Z"}`)
	cb, err := ParseCallback(body)
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.PredictionID != "pred-1" {
		t.Errorf("PredictionID = %q", cb.PredictionID)
	}
	if cb.Status != "succeeded" {
		t.Errorf("Status = %q, want lowercased", cb.Status)
	}
	if len(cb.Output) != 1 || cb.Output[0] != "https://cdn/out.jpg" {
		t.Errorf("Output = %v", cb.Output)
	}
}

func TestParseCallbackErrorShapes(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"id":"pred-1","status":"failed","error":"model crashed"}`))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.Error != "model crashed" {
		t.Errorf("Error = %q", cb.Error)
	}

	cb, err = ParseCallback([]byte(`{"id":"pred-1","status":"failed","error":{"code":"E6716"}}`))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if cb.Error != `{"code":"E6716"}` {
		t.Errorf("Error = %q", cb.Error)
	}
}

func TestParseCallbackRejectsMissingID(t *testing.T) {
	if _, err := ParseCallback([]byte(`{"status":"succeeded"}`)); err == nil {
		t.Fatal("expected error for missing prediction id")
	}
	if _, err := ParseCallback([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
