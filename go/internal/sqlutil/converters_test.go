package sqlutil

import (
	"encoding/json"
	"testing"
)

func TestNullRawMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		in        json.RawMessage
		wantValid bool
	}{
		{name: "nil is NULL", in: nil, wantValid: false},
		{name: "empty is NULL", in: json.RawMessage{}, wantValid: false},
		{name: "object is kept", in: json.RawMessage(`{"max_rounds":12}`), wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ToNullRawMessage(tt.in)
			if n.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v", n.Valid, tt.wantValid)
			}
			back := FromNullRawMessage(n)
			if tt.wantValid && string(back) != string(tt.in) {
				t.Errorf("got %s, want %s", back, tt.in)
			}
			if !tt.wantValid && back != nil {
				t.Errorf("expected nil for NULL, got %s", back)
			}
		})
	}
}
