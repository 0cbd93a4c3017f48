package pkg

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

var ContentType = struct {
	JSON string
	Text string
	CSV  string
	PDF  string
}{
	JSON: "application/json",
	Text: "text/plain",
	CSV:  "text/csv",
	PDF:  "application/pdf",
}

func WriteResponseBytes(w http.ResponseWriter, contentType string, message []byte, statusCode int) {
	if contentType != "" {
		w.Header().Add("Content-Type", contentType)
	}
	w.WriteHeader(statusCode)

	if _, err := w.Write(message); err != nil {
		log.Errorf("failed to write response [%s]: %s", message, err)
	}
}

// WriteJSONError is the counterpart of http.Error for clients expecting a JSON body.
func WriteJSONError(w http.ResponseWriter, message string, statusCode int) {
	WriteResponseBytes(
		w, ContentType.JSON,
		[]byte(fmt.Sprintf(`{"error":%q}`, message)),
		statusCode,
	)
}

// WriteAttachmentBytes is used for downloadable exports (csv / json / pdf files).
func WriteAttachmentBytes(w http.ResponseWriter, contentType, filename string, content []byte) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	WriteResponseBytes(w, contentType, content, http.StatusOK)
}
