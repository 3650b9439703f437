package validation

import (
	"fmt"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// Границы формы создания публикации.
const (
	CreateTitleMin    = 10
	CreateAbstractMin = 200
	CreateAbstractMax = 2500
	CreateContentMin  = 500
	CreateContentMax  = 15000
	CreateKeywordsMax = 20
)

// ValidateCreate проверяет форму создания публикации.
// Возвращает Errors или nil.
func ValidateCreate(f Form) error {
	errs := Errors{}

	if runeLen(f.Title) < CreateTitleMin {
		errs.add(FieldTitle, fmt.Sprintf("заголовок должен содержать не менее %d символов", CreateTitleMin))
	}

	switch n := runeLen(f.Abstract); {
	case n < CreateAbstractMin:
		errs.add(FieldAbstract, fmt.Sprintf("аннотация должна содержать не менее %d символов", CreateAbstractMin))
	case n > CreateAbstractMax:
		errs.add(FieldAbstract, fmt.Sprintf("аннотация не может превышать %d символов", CreateAbstractMax))
	}

	switch n := runeLen(f.Content); {
	case n < CreateContentMin:
		errs.add(FieldContent, fmt.Sprintf("текст должен содержать не менее %d символов", CreateContentMin))
	case n > CreateContentMax:
		errs.add(FieldContent, fmt.Sprintf("текст не может превышать %d символов", CreateContentMax))
	}

	if f.Category == "" {
		errs.add(FieldCategory, "категория обязательна")
	} else if !model.IsKnownCategory(f.Category) {
		errs.add(FieldCategory, fmt.Sprintf("неизвестная категория %q", f.Category))
	}

	if keywordCount(f.Keywords) > CreateKeywordsMax {
		errs.add(FieldKeywords, fmt.Sprintf("не более %d ключевых слов", CreateKeywordsMax))
	}

	if f.FileName != "" && !hasExtension(f.FileName, "pdf", "doc", "docx") {
		errs.add(FieldFile, "допустимы только документы PDF и Word")
	}

	if f.VideoName != "" && !hasExtension(f.VideoName, "mp4", "avi", "mov") {
		errs.add(FieldVideoFile, "допустимы только видео MP4, AVI или MOV")
	}

	return errs.orNil()
}
