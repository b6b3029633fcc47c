package telemetry_test

import (
	"encoding/json"
	"math"
	"testing"

	"groundstation/internal/telemetry"
)

func TestNumberJSON(t *testing.T) {
	data, err := json.Marshal(telemetry.Numbers([]float64{1.5, math.NaN(), math.Inf(-1), -2}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[1.5,null,null,-2]" {
		t.Fatalf("unexpected encoding %s", data)
	}

	var decoded []telemetry.Number
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	floats := telemetry.Floats(decoded)
	if floats[0] != 1.5 || !math.IsNaN(floats[1]) || !math.IsNaN(floats[2]) || floats[3] != -2 {
		t.Fatalf("unexpected decode %v", floats)
	}
}
