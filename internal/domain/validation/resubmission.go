package validation

import "fmt"

// Границы формы переотправки. Аннотация и текст считаются в словах.
const (
	ResubmitTitleMin         = 10
	ResubmitAbstractMinWords = 200
	ResubmitAbstractMaxWords = 250
	ResubmitContentMinWords  = 1000
	ResubmitKeywordsMax      = 10
	ResubmitCoAuthorsMax     = 300
	ResubmitVolumeMax        = 20
)

// ValidateResubmit проверяет форму переотправки отклонённой публикации.
// Результат зависит только от входных данных: повторная проверка той же формы
// даёт тот же набор ошибок.
func ValidateResubmit(f Form) error {
	errs := Errors{}

	if runeLen(f.Title) < ResubmitTitleMin {
		errs.add(FieldTitle, fmt.Sprintf("заголовок должен содержать не менее %d символов", ResubmitTitleMin))
	}

	switch n := wordCount(f.Abstract); {
	case n < ResubmitAbstractMinWords:
		errs.add(FieldAbstract, fmt.Sprintf("аннотация должна содержать не менее %d слов (сейчас %d)", ResubmitAbstractMinWords, n))
	case n > ResubmitAbstractMaxWords:
		errs.add(FieldAbstract, fmt.Sprintf("аннотация не может превышать %d слов (сейчас %d)", ResubmitAbstractMaxWords, n))
	}

	if n := wordCount(f.Content); n < ResubmitContentMinWords {
		errs.add(FieldContent, fmt.Sprintf("текст должен содержать не менее %d слов (сейчас %d)", ResubmitContentMinWords, n))
	}

	if keywordCount(f.Keywords) > ResubmitKeywordsMax {
		errs.add(FieldKeywords, fmt.Sprintf("не более %d ключевых слов", ResubmitKeywordsMax))
	}

	if runeLen(f.CoAuthors) > ResubmitCoAuthorsMax {
		errs.add(FieldCoAuthors, fmt.Sprintf("список соавторов не может превышать %d символов", ResubmitCoAuthorsMax))
	}

	if runeLen(f.Volume) > ResubmitVolumeMax {
		errs.add(FieldVolume, fmt.Sprintf("том не может превышать %d символов", ResubmitVolumeMax))
	}

	if f.CoverName != "" && !hasExtension(f.CoverName, "jpg", "jpeg", "png", "webp") {
		errs.add(FieldCoverImage, "допустимы только изображения JPG, JPEG, PNG или WEBP")
	}

	return errs.orNil()
}
