package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	data := Dataset{
		Headers: []string{"field", "value"},
		Rows: []map[string]string{
			{"field": "email", "value": "alice@x.com"},
			{"field": "username"},
		},
	}

	out, err := RenderCSV(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "field,value", lines[0])
	assert.Equal(t, "email,alice@x.com", lines[1])
	assert.Equal(t, "username,", lines[2])
}

func TestRenderCSVRequiresHeaders(t *testing.T) {
	_, err := RenderCSV(Dataset{})
	require.Error(t, err)
}

func TestRenderPDF(t *testing.T) {
	data := Dataset{
		Headers: []string{"field", "value"},
		Rows:    []map[string]string{{"field": "email", "value": "alice@x.com"}},
	}

	out, err := RenderPDF(data, "Account data")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}
