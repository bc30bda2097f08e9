package procurement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procdocs/extract"
	"procdocs/index"
)

func TestExtractPrices(t *testing.T) {
	text := "Цена контракта 1 234 567,89 руб. (в т.ч. НДС), аванс 1500 ₽, доставка 12.5 р."
	prices := Extract(text).Prices
	require.Len(t, prices, 3)

	assert.Equal(t, "1 234 567,89 руб.", prices[0].Raw)
	assert.Equal(t, int64(123456789), prices[0].Kopecks)
	assert.Equal(t, 15, prices[0].Position)
	assert.Equal(t, int64(150000), prices[1].Kopecks)
	assert.Equal(t, int64(1250), prices[2].Kopecks)
	assert.InDelta(t, 12.5, prices[2].Rubles(), 0.001)

	maxPrice, ok := Extract(text).MaxPrice()
	require.True(t, ok)
	assert.Equal(t, prices[0], maxPrice)
}

func TestExtractPrices_NonBreakingSpaceGroups(t *testing.T) {
	prices := Extract("итого 2\u00a0500\u00a0000 рублей").Prices
	require.Len(t, prices, 1)
	assert.Equal(t, int64(250000000), prices[0].Kopecks)
}

func TestExtractDates(t *testing.T) {
	text := "Договор от «15» марта 2024 г., срок поставки до 01.04.2024, повторно 15.03.2024 и 31.02.2024"
	dates := Extract(text).Dates
	require.Len(t, dates, 2)

	assert.Equal(t, "«15» марта 2024", dates[0].Raw)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), dates[0].Date)
	assert.Equal(t, "01.04.2024", dates[1].Raw)
	assert.Equal(t, time.April, dates[1].Date.Month())
}

func TestExtractDates_CaseInsensitiveMonth(t *testing.T) {
	dates := Extract("Дата: 5 ДЕКАБРЯ 2023").Dates
	require.Len(t, dates, 1)
	assert.Equal(t, time.December, dates[0].Date.Month())
	assert.Equal(t, 5, dates[0].Date.Day())
}

func TestValidINN(t *testing.T) {
	tests := []struct {
		inn  string
		want bool
	}{
		{"7707083893", true},
		{"7736207543", true},
		{"500100732259", true},
		{"7707083894", false},
		{"500100732258", false},
		{"773601001", false},
		{"77070838a3", false},
	}
	for _, tt := range tests {
		t.Run(tt.inn, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidINN(tt.inn))
		})
	}
}

func TestExtractINNs(t *testing.T) {
	text := "Заказчик ИНН/КПП 7707083893/773601001, поставщик ИНН 500100732259, ошибочный 7707083894, снова 7707083893"
	assert.Equal(t, []string{"7707083893", "500100732259"}, Extract(text).INNs)
}

func TestExtractItems(t *testing.T) {
	text := "Перечень товаров: 1. Бумага А4 2. Ручки шариковые 3) Степлер. Срок поставки 5. дней"
	items := Extract(text).Items
	require.Len(t, items, 3)
	assert.Equal(t, Item{Number: 1, Text: "Бумага А4"}, items[0])
	assert.Equal(t, Item{Number: 2, Text: "Ручки шариковые"}, items[1])
	assert.Equal(t, 3, items[2].Number)
	assert.Equal(t, "Степлер. Срок поставки 5. дней", items[2].Text)
}

func TestExtractItems_Lines(t *testing.T) {
	text := "Состав:\n1. Монитор\n2. Клавиатура\nИтого две позиции\n"
	items := Extract(text).Items
	require.Len(t, items, 2)
	assert.Equal(t, "Монитор", items[0].Text)
	assert.Equal(t, "Клавиатура", items[1].Text)
}

func TestExtractItems_LoneMarkerIsNotAList(t *testing.T) {
	assert.Empty(t, Extract("Раздел 1. Общие положения").Items)
}

func TestFromEntries(t *testing.T) {
	entries := []index.Entry{
		index.NewEntry("a.txt", "txt", "Сумма 100 руб.", 14),
		index.NewEntry("b.txt", "txt", "ничего интересного", 18),
		index.NewEntry("c.pdf", "pdf", extract.Diagnostic("PDF", assert.AnError), 10),
	}

	got := FromEntries(entries)
	require.Len(t, got, 1)
	assert.Equal(t, "a.txt", got[0].Title)
	assert.Equal(t, int64(10000), got[0].Facts.Prices[0].Kopecks)
	assert.True(t, Facts{}.Empty())
}
