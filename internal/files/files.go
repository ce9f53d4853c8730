// Package files prepares local attachments for a conversation: type
// detection, a text preview for documents, and the upload round-trip.
package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/sapie-ai/sori/internal/api"
	"github.com/sapie-ai/sori/internal/chat"
)

// Kind buckets an attachment the way the backend expects.
const (
	KindDocument = "document"
	KindImage    = "image"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindCustom   = "custom"
)

// Attachment is a local file staged for upload.
type Attachment struct {
	Path     string
	Name     string
	Kind     string
	MimeType string
	Size     int64
	// Preview is a short text excerpt for documents, spoken back to the
	// user so they can confirm the right file was picked.
	Preview string
	Pages   int
}

// Uploader posts an attachment's bytes to the backend.
type Uploader interface {
	UploadFile(ctx context.Context, filename, user string, content io.Reader) (api.UploadedFile, error)
}

var kindByExtension = map[string]string{
	".pdf":  KindDocument,
	".txt":  KindDocument,
	".md":   KindDocument,
	".doc":  KindDocument,
	".docx": KindDocument,
	".hwp":  KindDocument,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".ogg":  KindAudio,
	".m4a":  KindAudio,
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".webm": KindVideo,
}

var mimeByExtension = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".hwp":  "application/x-hwp",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// DetectKind maps a filename to its attachment kind, KindCustom when the
// extension is unknown.
func DetectKind(name string) string {
	if kind, ok := kindByExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return kind
	}
	return KindCustom
}

// DetectMime maps a filename to a mime type, octet-stream when unknown.
func DetectMime(name string) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return "application/octet-stream"
}

const previewRuneLimit = 200

// Stat inspects a local file and builds its Attachment, including the text
// preview for PDFs.
func Stat(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("attachment is a directory: %s", path)
	}

	att := Attachment{
		Path:     path,
		Name:     filepath.Base(path),
		Kind:     DetectKind(path),
		MimeType: DetectMime(path),
		Size:     info.Size(),
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		// Preview failures are not fatal; the file can still be uploaded.
		if preview, pages, err := pdfPreview(path); err == nil {
			att.Preview = preview
			att.Pages = pages
		}
	}
	return att, nil
}

func pdfPreview(path string) (string, int, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	pages := reader.NumPage()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", pages, fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", pages, err
	}

	text := strings.Join(strings.Fields(builder.String()), " ")
	runes := []rune(text)
	if len(runes) > previewRuneLimit {
		text = string(runes[:previewRuneLimit]) + "…"
	}
	return text, pages, nil
}

// Upload posts the attachment and returns the reference to embed in the
// outgoing message.
func Upload(ctx context.Context, uploader Uploader, att Attachment, user string) (chat.FileRef, error) {
	f, err := os.Open(att.Path)
	if err != nil {
		return chat.FileRef{}, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	uploaded, err := uploader.UploadFile(ctx, att.Name, user, f)
	if err != nil {
		return chat.FileRef{}, fmt.Errorf("attachment upload error: %w", err)
	}

	kind := uploaded.Type
	if kind == "" {
		kind = att.Kind
	}
	mime := uploaded.MimeType
	if mime == "" {
		mime = att.MimeType
	}
	return chat.FileRef{
		ID:       uploaded.UploadFileID,
		Name:     att.Name,
		MimeType: mime,
		Kind:     kind,
	}, nil
}
