package input

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead_PlainList(t *testing.T) {
	path := writeScan(t, "35047019298421\n35047018911974\n35047016806341\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "35047018911974", "35047016806341"}, barcodes)
}

func TestRead_CSVFirstColumn(t *testing.T) {
	path := writeScan(t, "35047019298421,QA76.73,Stacks\n35047018911974,QA76.9,Stacks\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "35047018911974"}, barcodes)
}

func TestRead_HeaderTolerated(t *testing.T) {
	path := writeScan(t, "Barcode,Call number\n35047019298421,QA76.73\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421"}, barcodes)
}

func TestRead_SkipsBlanksAndComments(t *testing.T) {
	path := writeScan(t, "# shelf QA76, scanned 2023-11-02\n35047019298421\n\n  \n35047018911974\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "35047018911974"}, barcodes)
}

func TestRead_TrimsWhitespace(t *testing.T) {
	path := writeScan(t, "  35047019298421  \r\n\t35047018911974\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "35047018911974"}, barcodes)
}

func TestRead_NoBarcodePlaceholder(t *testing.T) {
	path := writeScan(t, "35047019298421\nnobarcode-shelf-QA76-item-3\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "nobarcode-shelf-QA76-item-3"}, barcodes)
}

func TestRead_SkipsOddLinesMidFile(t *testing.T) {
	path := writeScan(t, "35047019298421\nnot-a-barcode\n35047018911974\n")

	barcodes, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"35047019298421", "35047018911974"}, barcodes)
}

func TestRead_EmptyFile(t *testing.T) {
	path := writeScan(t, "")

	_, err := Read(path)
	require.Error(t, err)
	assert.True(t, IsInputFormatError(err))
}

func TestRead_HeaderOnly(t *testing.T) {
	path := writeScan(t, "Barcode,Call number\n")

	_, err := Read(path)
	require.Error(t, err)
	assert.True(t, IsInputFormatError(err))
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.True(t, IsInputFormatError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestIsBarcode(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"35047019298421", true},
		{"0", true},
		{"nobarcode", true},
		{"NOBARCODE-17", true},
		{"nobarcode QA76 copy 2", true},
		{"", false},
		{"QA76.73", false},
		{"35047019298421x", false},
		{"3504 7019", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBarcode(tt.value))
		})
	}
}
