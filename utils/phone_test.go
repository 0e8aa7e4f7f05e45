package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"national ten digits", "33 1234 5678", "523312345678"},
		{"bare national", "3312345678", "523312345678"},
		{"with country code", "+52 33 1234 5678", "523312345678"},
		{"legacy mobile one", "+52 1 33 1234 5678", "523312345678"},
		{"punctuation", "(33) 1234-5678", "523312345678"},
		{"trailing extension", "+52 33 1234 5678 ext 9", "523312345678"},
		{"too short", "12345", ""},
		{"empty", "", ""},
		{"foreign number", "+1 415 555 0100 22", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw))
		})
	}
}

func TestNormalizePhoneIsIdempotent(t *testing.T) {
	for _, raw := range []string{"3312345678", "+52 1 33 1234 5678", "5212345678", "52 33 1234 5678 99"} {
		once := NormalizePhone(raw)
		assert.NotEmpty(t, once, raw)
		assert.Equal(t, once, NormalizePhone(once), raw)
		assert.Len(t, once, 12)
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "5233", DigitsOnly("+52 (33)"))
	assert.Equal(t, "", DigitsOnly("sin número"))
}
