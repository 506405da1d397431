package misskey

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/models"
)

// UploadFile stores a file in the account's drive and returns the created drive file.
func (v *Client) UploadFile(ctx context.Context, name, contentType string, content io.Reader) (models.DriveFile, error) {
	var file models.DriveFile

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("i", v.token); err != nil {
		return file, err
	}
	if err := writer.WriteField("name", name); err != nil {
		return file, err
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(name)))
	if len(contentType) > 0 {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return file, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return file, fmt.Errorf("failed to buffer %s: %v", name, err)
	}
	if err := writer.Close(); err != nil {
		return file, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiURL("drive/files/create"), &buf)
	if err != nil {
		return file, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if err := v.do(req, "drive/files/create", &file); err != nil {
		return file, fmt.Errorf("file upload failed for %s: %w", name, err)
	}
	return file, nil
}

func escapeQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
