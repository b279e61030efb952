package sniff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2024-01-15", true},
		{"15/01/2024", true},
		{"1/2/24", true},
		{"15.01.2024", true},
		{"15 Jan 2024", true},
		{"Jan 15, 2024", true},
		{"March 3 2024", true},
		{"12 Apples 2024", false},
		{"Date", false},
		{"-4.50", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeDate(tt.in))
		})
	}
}

func TestLooksLikeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"-4.50", true},
		{"1,234.56", true},
		{"1.234,56", true},
		{"(12.00)", true},
		{"$12.00", true},
		{"€ 9,99", true},
		{"12.50-", true},
		{"100.00 CR", true},
		{"USD 12.00", true},
		{"1 234,56", true},
		{"2024-01-15", false},
		{"Amount", false},
		{"Coffee", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeAmount(tt.in))
		})
	}
}

func TestLooksLikeLabel(t *testing.T) {
	assert.True(t, LooksLikeLabel("Date"))
	assert.True(t, LooksLikeLabel("Paid out"))
	assert.True(t, LooksLikeLabel("Amount (GBP)"))
	assert.False(t, LooksLikeLabel("2024-01-15"))
	assert.False(t, LooksLikeLabel("-4.50"))
	assert.False(t, LooksLikeLabel("Card payment to Tesco Stores Ltd London"))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank([]string{"", "  ", "\t"}))
	assert.True(t, IsBlank(nil))
	assert.False(t, IsBlank([]string{"", "x"}))
}
