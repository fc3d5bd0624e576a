package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane@acme.io", Normalize("  Jane@ACME.io "))
}

func TestValidate(t *testing.T) {
	valid := []string{"jane@acme.io", "j.doe+ops@mail.acme.co"}
	for _, v := range valid {
		assert.NoError(t, Validate(v), v)
	}
	invalid := []string{"", "jane", "jane@", "@acme.io", "Jane <jane@acme.io>", "jane@localhost"}
	for _, v := range invalid {
		assert.Error(t, Validate(v), v)
	}
}

func TestDeriveNameFromEmail(t *testing.T) {
	first, last := DeriveNameFromEmail("jane.doe@acme.io")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = DeriveNameFromEmail("ops@acme.io")
	assert.Equal(t, "Ops", first)
	assert.Empty(t, last)

	first, last = DeriveNameFromEmail("@acme.io")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
