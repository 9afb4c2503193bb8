package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"statement.pdf", "statement.pdf"},
		{"../../etc/passwd", "passwd"},
		{"bank statement (1).pdf", "bank_statement__1_.pdf"},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.in))
		})
	}
}

func TestProtectedFilename(t *testing.T) {
	assert.Equal(t, "april-protected.pdf", ProtectedFilename("april.pdf"))
	assert.Equal(t, "april-protected.pdf", ProtectedFilename("april"))
	assert.Equal(t, "document-protected.pdf", ProtectedFilename(""))
}

func TestGenerateUUID(t *testing.T) {
	id := GenerateUUID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, GenerateUUID())
}
