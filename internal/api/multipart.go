package api

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FormPayload はmultipart/form-dataで送信するフォーム内容を表す。
// Fileがnilの場合はテキストフィールドのみのフォームになる。
type FormPayload struct {
	Fields map[string]string
	File   *FilePart
}

// FilePart はフォームに添付するファイルを表す。
// Dataは不透明なバイナリペイロードとして扱う。
type FilePart struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// encodeMultipart はFormPayloadをmultipartボディへエンコードする。
// 戻り値のcontentTypeにはboundary付きのContent-Type値が入る。
func encodeMultipart(form *FormPayload) (*bytes.Buffer, string, error) {
	if form == nil {
		return nil, "", fmt.Errorf("form payload is nil")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range form.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %q: %w", name, err)
		}
	}

	if form.File != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`,
			escapeQuotes(form.File.FieldName), escapeQuotes(form.File.Filename)))
		contentType := form.File.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(form.File.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
