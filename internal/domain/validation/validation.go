// Пакет validation — локальная валидация форм публикации.
//
// Правила создания и переотправки намеренно разные и не объединяются:
// при создании границы считаются в символах, при переотправке — в словах,
// и лимит ключевых слов при переотправке ниже.
// Невалидные данные никогда не отправляются на backend.
package validation

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// Имена полей в ответе с ошибками.
const (
	FieldTitle      = "title"
	FieldAbstract   = "abstract"
	FieldContent    = "content"
	FieldCategory   = "category"
	FieldKeywords   = "keywords"
	FieldCoAuthors  = "co_authors"
	FieldVolume     = "volume"
	FieldFile       = "file"
	FieldVideoFile  = "video_file"
	FieldCoverImage = "cover_image"
)

// Form — поля формы публикации, существенные для валидации.
// Для файлов передаются только имена: проверяется расширение.
type Form struct {
	Title     string
	Abstract  string
	Content   string
	Category  string
	Keywords  string
	CoAuthors string
	Volume    string
	FileName  string
	VideoName string
	CoverName string
}

// Errors — ошибки валидации по полям (поле → сообщение).
type Errors map[string]string

// Error реализует error; поля перечисляются в алфавитном порядке.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "ошибка валидации: " + strings.Join(parts, "; ")
}

// add записывает первую ошибку поля; последующие для того же поля игнорируются.
func (e Errors) add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// orNil возвращает nil для пустого набора, чтобы результат можно было сравнивать с nil.
func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// runeLen — длина строки в символах.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// wordCount — количество слов, разделённых пробельными символами.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// keywordCount — количество элементов списка через запятую.
// Пустая строка — ноль ключевых слов; "a,b," считается как три элемента.
func keywordCount(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(s, ","))
}

// hasExtension проверяет расширение файла без учёта регистра.
func hasExtension(name string, allowed ...string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}
