package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheet() Sheet {
	return Sheet{
		Title:   "Biology 101",
		Summary: []SummaryLine{{Label: "Total", Value: "80% B-"}},
		Headers: []string{"Assignment", "Score"},
		Rows: [][]string{
			{"Quiz 1", "8 / 10"},
			{"Lab, week 2", "-"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleSheet())
	require.NoError(t, err)

	expected := "Total,80% B-\nAssignment,Score\nQuiz 1,8 / 10\n\"Lab, week 2\",-\n"
	assert.Equal(t, expected, string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	sheet := sampleSheet()
	sheet.Rows = append(sheet.Rows, []string{"only one"})

	_, err := NewCSVExporter().Render(sheet)
	assert.Error(t, err)
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleSheet())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
