package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"quality":0.4}`, false},
		{"wrong type", `{"quality":"x"}`, true},
		{"missing field", `{}`, true},
		{"extra field", `{"quality":1,"x":2}`, true},
		{"not json", `quality`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateResponse(feedbackSchema, json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var inv *ErrInvalidResponse
			if err != nil && !errors.As(err, &inv) {
				t.Errorf("want ErrInvalidResponse, got %T", err)
			}
		})
	}
}

func TestValidateWithoutSchema(t *testing.T) {
	if err := validateResponse(nil, json.RawMessage(`not json`)); err != nil {
		t.Errorf("nil schema should accept anything: %v", err)
	}
}

func TestCompileSchemaCached(t *testing.T) {
	a, err := compileSchema(feedbackSchema)
	if err != nil {
		t.Fatal(err)
	}
	b, err := compileSchema(feedbackSchema)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second compile should hit the cache")
	}
}

func TestEstimateCost(t *testing.T) {
	if _, ok := EstimateCost("no-such-model", 10, 10); ok {
		t.Error("unknown model should not be priced")
	}
	cost, ok := EstimateCost("gpt-4o-mini", 1_000_000, 0)
	if !ok || cost <= 0 {
		t.Errorf("EstimateCost = %v, %v", cost, ok)
	}
}
