package ratelimit

import "testing"

func TestAllowEnforcesOperationBurst(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{
		GlobalRPS:      1000,
		GlobalBurst:    1000,
		OperationRPS:   1,
		OperationBurst: 2,
	})

	if !l.Allow("sentiment") || !l.Allow("sentiment") {
		t.Fatal("burst capacity should admit the first two calls")
	}
	if l.Allow("sentiment") {
		t.Fatal("third immediate call should be denied")
	}

	// A different operation has its own budget.
	if !l.Allow("detect_objects") {
		t.Fatal("independent operation should be admitted")
	}
}

func TestAllowEnforcesGlobalBudget(t *testing.T) {
	t.Parallel()

	l := NewLimiter(Config{
		GlobalRPS:      1,
		GlobalBurst:    1,
		OperationRPS:   100,
		OperationBurst: 100,
	})

	if !l.Allow("a") {
		t.Fatal("first call should pass")
	}
	if l.Allow("b") {
		t.Fatal("global budget should deny the second immediate call")
	}
}
