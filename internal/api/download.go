package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cleanslate/cleanslate/internal/session"
	"github.com/cleanslate/cleanslate/internal/tablecodec"
)

func handleDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Store == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DOWNLOAD_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("session"))
	if sessionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SESSION_ID_REQUIRED", "session path parameter is required", false, nil)
		return
	}
	format := r.URL.Query().Get("format")

	var (
		data        []byte
		contentType string
		outputName  string
	)
	err := deps.Store.WithSession(sessionID, func(sess *session.Session) error {
		var encodeErr error
		data, contentType, outputName, encodeErr = tablecodec.EncodeAs(sess.Current(), sess.Filename(), format)
		return encodeErr
	})
	if err != nil {
		if isSessionNotFound(err) {
			writeSessionNotFound(r.Context(), w)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "ENCODE_FAILED", err.Error(), false, nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outputName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
