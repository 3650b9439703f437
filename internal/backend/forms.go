package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// Encoder — тело запроса изменения публикации.
// Каждая форма кодирует только разрешённые для своей операции поля.
type Encoder interface {
	Encode() (body io.Reader, contentType string, err error)
}

// Upload — загружаемый файл. Open может вызываться несколько раз:
// одна и та же обложка уходит и в автосохранение, и в переотправку.
type Upload struct {
	FileName string
	Open     func() (io.ReadCloser, error)
}

// CreateForm — тело POST /publications/.
type CreateForm struct {
	Title     string
	Abstract  string
	Content   string
	Category  string
	Keywords  string
	CoAuthors string
	Volume    string
	File      *Upload
	Video     *Upload
	Cover     *Upload
}

// Encode кодирует форму создания в multipart.
func (f *CreateForm) Encode() (io.Reader, string, error) {
	b := newFormBuilder()
	b.field("title", f.Title)
	b.field("abstract", f.Abstract)
	b.field("content", f.Content)
	b.field("category", f.Category)
	b.field("keywords", f.Keywords)
	b.optional("co_authors", f.CoAuthors)
	b.optional("volume", f.Volume)
	b.file("file", f.File)
	b.file("video_file", f.Video)
	b.file("cover_image", f.Cover)
	return b.finish()
}

// DraftForm — автосохранение текста публикации (PATCH /update/).
// Статус не передаётся: сохранение черновика не меняет состояние публикации.
type DraftForm struct {
	Title     string
	Abstract  string
	Content   string
	Keywords  string
	CoAuthors string
	Volume    string
	Cover     *Upload
	// RemoveCover — явно удалить обложку (cover_image передаётся пустым значением).
	RemoveCover bool
}

// Encode кодирует черновик в multipart.
func (f *DraftForm) Encode() (io.Reader, string, error) {
	b := newFormBuilder()
	b.field("title", f.Title)
	b.field("abstract", f.Abstract)
	b.field("content", f.Content)
	b.field("keywords", f.Keywords)
	b.field("co_authors", f.CoAuthors)
	b.field("volume", f.Volume)
	switch {
	case f.Cover != nil:
		b.file("cover_image", f.Cover)
	case f.RemoveCover:
		b.field("cover_image", "")
	}
	return b.finish()
}

// ResubmitForm — перевод публикации в pending (PATCH /update/).
// Используется и для первой отправки черновика, и для переотправки после отклонения.
type ResubmitForm struct {
	IsFreeReview bool
	// PaymentReference — оплаченный reference; пуст при бесплатной рецензии.
	PaymentReference string
}

// Encode кодирует переход в multipart.
func (f *ResubmitForm) Encode() (io.Reader, string, error) {
	b := newFormBuilder()
	b.field("status", string(model.StatusPending))
	b.field("is_free_review", strconv.FormatBool(f.IsFreeReview))
	b.optional("payment_reference", f.PaymentReference)
	return b.finish()
}

// formBuilder накапливает поля multipart; первая ошибка сохраняется и возвращается из finish.
type formBuilder struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newFormBuilder() *formBuilder {
	b := &formBuilder{}
	b.w = multipart.NewWriter(&b.buf)
	return b
}

func (b *formBuilder) field(name, value string) {
	if b.err != nil {
		return
	}
	if err := b.w.WriteField(name, value); err != nil {
		b.err = fmt.Errorf("поле %s: %w", name, err)
	}
}

func (b *formBuilder) optional(name, value string) {
	if value != "" {
		b.field(name, value)
	}
}

func (b *formBuilder) file(name string, up *Upload) {
	if b.err != nil || up == nil {
		return
	}
	src, err := up.Open()
	if err != nil {
		b.err = fmt.Errorf("открытие файла %s: %w", name, err)
		return
	}
	defer src.Close()

	dst, err := b.w.CreateFormFile(name, up.FileName)
	if err != nil {
		b.err = fmt.Errorf("файл %s: %w", name, err)
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		b.err = fmt.Errorf("копирование файла %s: %w", name, err)
	}
}

func (b *formBuilder) finish() (io.Reader, string, error) {
	if b.err != nil {
		return nil, "", b.err
	}
	if err := b.w.Close(); err != nil {
		return nil, "", fmt.Errorf("завершение multipart: %w", err)
	}
	return &b.buf, b.w.FormDataContentType(), nil
}
