package connectors

import (
	"errors"
	"testing"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"0", 0},
		{"64250.5", 64250.5},
		{"-12.75", -12.75},
		{"garbage", 0},
	}

	for _, tt := range tests {
		if got := ParsePrice(tt.in); got != tt.want {
			t.Errorf("ParsePrice(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContractMultiplier(t *testing.T) {
	if got := ContractMultiplier(nil); got != 1 {
		t.Fatalf("nil contract must default to 1, got %v", got)
	}
	if got := ContractMultiplier(&Contract{}); got != 1 {
		t.Fatalf("empty multiplier must default to 1, got %v", got)
	}
	if got := ContractMultiplier(&Contract{QuantoMultiplier: "0"}); got != 1 {
		t.Fatalf("zero multiplier must default to 1, got %v", got)
	}
	if got := ContractMultiplier(&Contract{QuantoMultiplier: "0.0001"}); got != 0.0001 {
		t.Fatalf("expected 0.0001, got %v", got)
	}
}

func TestIsRetryableResp(t *testing.T) {
	if !isRetryableResp(nil, errors.New("connection reset")) {
		t.Fatal("transport errors are retryable")
	}
	if isRetryableResp(nil, nil) {
		t.Fatal("a nil response without error is not retryable")
	}
}
