package extract

import (
	"encoding/binary"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func TestDocByteHeuristic(t *testing.T) {
	cyr, err := charmap.Windows1251.NewEncoder().String("Поставка")
	require.NoError(t, err)

	data := []byte("\x00\x01ab\x00Contract\x02\x03" + cyr + "\x00 12 x 345 \x07Supply")
	got := docByteHeuristic(data)

	assert.Equal(t, "Contract Поставка Supply", got)
}

func TestMeaningfulTokens(t *testing.T) {
	assert.Equal(t, "abc договор a1b", meaningfulTokens("ab abc 1234 договор -- a1b"))
	assert.Equal(t, "", meaningfulTokens(""))
}

func TestScanUTF16LE(t *testing.T) {
	units := utf16.Encode([]rune("Техническое задание"))
	buf := []byte{0xff, 0xff}
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}
	buf = append(buf, 0xff, 0xff)

	assert.Equal(t, "Техническое задание", scanUTF16LE(buf))
}

func TestDOCExtractorFallsBackToEmbeddedText(t *testing.T) {
	// Short byte-heuristic output; longer UTF-16 text
	text := strings.Repeat("Спецификация товара ", 5)
	var buf []byte
	for _, u := range utf16.Encode([]rune(text)) {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}

	p := writeFile(t, t.TempDir(), "legacy.doc", buf)
	got := (&DOCExtractor{}).ExtractText(p)

	assert.Contains(t, got, "Спецификация товара")
	assert.GreaterOrEqual(t, len([]rune(got)), 50)
}
