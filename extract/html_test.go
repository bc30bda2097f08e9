package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLExtractor(t *testing.T) {
	p := writeFile(t, t.TempDir(), "notice.html", []byte(`<html><head><title>Извещение</title>
<style>body { color: red }</style><script>var x = "договор";</script></head>
<body><p>Закупка &amp; поставка</p><table><tr><td>ИНН</td><td>7707083893</td></tr></table></body></html>`))

	text := (&HTMLExtractor{}).ExtractText(p)

	assert.Contains(t, text, "Извещение")
	assert.Contains(t, text, "Закупка & поставка")
	assert.Contains(t, text, "7707083893")
	assert.NotContains(t, text, "color")
	assert.NotContains(t, text, "договор")
}

const testEML = "From: Заказчик <buyer@example.com>\r\n" +
	"To: supplier@example.com\r\n" +
	"Subject: =?UTF-8?B?0JfQsNC/0YDQvtGB?=\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Просим направить коммерческое предложение.\r\n"

func TestEMLExtractor(t *testing.T) {
	p := writeFile(t, t.TempDir(), "request.eml", []byte(testEML))

	text := (&EMLExtractor{}).ExtractText(p)

	assert.Contains(t, text, "Тема: Запрос")
	assert.Contains(t, text, "коммерческое предложение")
}

func TestMBOXExtractor(t *testing.T) {
	dir := t.TempDir()
	second := strings.Replace(testEML, "коммерческое предложение", "счёт на оплату", 1)
	data := "From buyer@example.com Mon Jan  1 00:00:00 2024\n" + testEML +
		"\nFrom buyer@example.com Tue Jan  2 00:00:00 2024\n" + second
	p := filepath.Join(dir, "inbox.mbox")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))

	text := (&MBOXExtractor{}).ExtractText(p)

	assert.Contains(t, text, "коммерческое предложение")
	assert.Contains(t, text, "счёт на оплату")
	assert.Contains(t, text, "\n---\n")
}
