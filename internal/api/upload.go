package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/cleanslate/cleanslate/internal/observability"
	"github.com/cleanslate/cleanslate/internal/preview"
	"github.com/cleanslate/cleanslate/internal/tablecodec"
)

type uploadResponse struct {
	SessionID    string        `json:"session_id"`
	Filename     string        `json:"filename"`
	TotalRows    int           `json:"total_rows"`
	TotalColumns int           `json:"total_columns"`
	Columns      []string      `json:"columns"`
	Preview      []preview.Row `json:"preview"`
}

func handleUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Store == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "UPLOAD_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	if deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
	}

	data, filename, err := readUpload(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), false, nil)
		return
	}

	t, err := tablecodec.Decode(data, filename)
	if err != nil {
		observability.ObserveUploadFailure()
		var unreadable *tablecodec.UnreadableFileError
		if errors.As(err, &unreadable) {
			writeError(r.Context(), w, http.StatusBadRequest, "UNREADABLE_FILE", "no decode strategy could read the file", false,
				map[string]any{"strategies": unreadable.Diagnostics()})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "UNREADABLE_FILE", err.Error(), false, nil)
		return
	}

	sess := deps.Store.Create(t, filename)
	observability.ObserveUpload()

	writeJSON(w, http.StatusOK, uploadResponse{
		SessionID:    sess.ID(),
		Filename:     filename,
		TotalRows:    t.NumRows(),
		TotalColumns: t.NumCols(),
		Columns:      t.ColumnNames(),
		Preview:      preview.Format(t, previewRows(deps)),
	})
}

// readUpload accepts either a multipart form with a "file" field or a raw
// body with the filename in X-Filename.
func readUpload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New(`multipart field "file" is required`)
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	}

	filename := strings.TrimSpace(r.Header.Get("X-Filename"))
	if filename == "" {
		return nil, "", errors.New("X-Filename header is required for raw uploads")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("upload body is empty")
	}
	return data, filename, nil
}
