package auth

import (
	"strings"
	"testing"
	"time"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:       "valid without special character",
			password:   "SecurePass123",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "Pass@1",
			shouldFail: true,
		},
		{
			name:       "too long",
			password:   "Aa1" + strings.Repeat("x", 130),
			shouldFail: true,
		},
		{
			name:       "missing uppercase",
			password:   "securepass123",
			shouldFail: true,
		},
		{
			name:       "missing lowercase",
			password:   "SECUREPASS123",
			shouldFail: true,
		},
		{
			name:       "missing digit",
			password:   "SecurePassword",
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if err.Error() != "invalid password" {
					t.Errorf("error message should stay generic, got: %v", err)
				}
			} else {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			}
		})
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("hash should not be empty")
	}

	if hash == password {
		t.Error("hash should not equal plaintext password")
	}

	err = ComparePassword(hash, password)
	if err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}

	err = ComparePassword(hash, "WrongPassword123!")
	if err == nil {
		t.Error("ComparePassword with wrong password should fail")
	}
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestBurnPasswordCompare(t *testing.T) {
	// Must always fail and take roughly as long as a real comparison
	start := time.Now()
	BurnPasswordCompare("any-password-at-all")
	elapsed := time.Since(start)

	// A real bcrypt comparison at this cost never completes instantly
	if elapsed < time.Millisecond {
		t.Errorf("burn comparison completed suspiciously fast: %v", elapsed)
	}
}
