package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBroadcast(t *testing.T) {
	assert.True(t, IsBroadcast("status@broadcast"))
	assert.True(t, IsBroadcast("12345678@broadcast"))
	assert.False(t, IsBroadcast("5511999999999@s.whatsapp.net"))
	assert.False(t, IsBroadcast("120363000000000000@g.us"))
	assert.False(t, IsBroadcast(""))
}

func TestUserPart(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"5511999999999:12@s.whatsapp.net", "5511999999999"},
		{"5511999999999@s.whatsapp.net", "5511999999999"},
		{"5511999999999", "5511999999999"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, UserPart(tt.input))
		})
	}
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "5511999999999@s.whatsapp.net", NormalizeTarget("5511999999999"))
	assert.Equal(t, "5511999999999@s.whatsapp.net", NormalizeTarget("+5511999999999"))
	assert.Equal(t, "120363000000000000@g.us", NormalizeTarget("120363000000000000@g.us"))
	assert.Equal(t, "", NormalizeTarget("  "))
}

func TestSanitizePhone(t *testing.T) {
	assert.Equal(t, "5511987654321", SanitizePhone("+55 (11) 98765-4321"))
	assert.Equal(t, "", SanitizePhone("abc"))
}
