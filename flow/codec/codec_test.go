package codec

import (
	"testing"
)

type refund struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
}

// TestJSONRoundTrip verifies values survive Marshal and Decode.
func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}

	in := refund{OrderID: "o-1", Amount: 12.5}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	out, err := Decode[refund](c, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip changed the value: got %+v, want %+v", out, in)
	}
}

// TestJSONDeterministic verifies equal values encode to equal bytes, which
// memo lookups depend on.
func TestJSONDeterministic(t *testing.T) {
	c := JSON{}

	v := map[string]any{"b": 2, "a": 1, "c": []string{"x", "y"}}
	first, err := c.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	second, err := c.Marshal(map[string]any{"c": []string{"x", "y"}, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("equal values encoded differently: %s vs %s", first, second)
	}
}

// TestDecodeError verifies malformed data surfaces as an error, not a zero
// value.
func TestDecodeError(t *testing.T) {
	if _, err := Decode[refund](JSON{}, []byte(`{"order_id":`)); err == nil {
		t.Error("expected an error for malformed data")
	}
}
