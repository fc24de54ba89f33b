package services

import (
	"strings"

	"kitchenline/server/internal/models"
)

// DefaultEntryKeywords ключевые слова, по которым позиция идет на станцию entry
var DefaultEntryKeywords = []string{"borda", "recheada", "chocolate", "catupiry", "cheddar"}

// EntryClassifier определяет, нужна ли позиции общая подготовительная станция
type EntryClassifier struct {
	keywords []string
}

// NewEntryClassifier создает классификатор. Пустой список - ключевые слова по умолчанию.
func NewEntryClassifier(keywords []string) *EntryClassifier {
	if len(keywords) == 0 {
		keywords = DefaultEntryKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	return &EntryClassifier{keywords: normalized}
}

// Keywords текущий набор ключевых слов
func (c *EntryClassifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// NeedsEntry true, если заметки, допы или опции составных частей содержат ключевое слово
func (c *EntryClassifier) NeedsEntry(attrs models.ItemAttributes) bool {
	if c.matches(attrs.Notes) {
		return true
	}
	for _, extra := range attrs.Extras {
		if c.matches(extra) {
			return true
		}
	}
	for _, sub := range attrs.SubItems {
		for _, option := range sub.Options {
			if c.matches(option) {
				return true
			}
		}
	}
	return false
}

func (c *EntryClassifier) matches(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
