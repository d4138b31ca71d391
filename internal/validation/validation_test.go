package validation

import (
	"strings"
	"testing"
)

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"user_123", true},
		{"alice", true},
		{"user-with-hyphens", true},
		{"abc", true},

		// Invalid cases
		{"ab", false},                  // Too short
		{"User_123", false},            // Uppercase
		{"user 123", false},            // Space
		{"user@example", false},        // Invalid chars
		{"", false},
		{strings.Repeat("a", 65), false}, // Too long
	}

	for _, tc := range tests {
		result := IsValidUserID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tc.id, result, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("name", "John"),
		ValidUserID("userId", "user_123"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("name", ""),
		ValidUserID("userId", "Not Valid!"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestPositiveAmount(t *testing.T) {
	tests := []struct {
		value float64
		valid bool
	}{
		{1.00, true},
		{0.50, true},
		{100, true},
		{0.000001, true},

		// Invalid
		{0, false},
		{-1.00, false},
	}

	for _, tc := range tests {
		err := PositiveAmount("amount", tc.value)()
		valid := err == nil
		if valid != tc.valid {
			t.Errorf("PositiveAmount(%v) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
