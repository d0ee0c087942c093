package app

import (
	"log"
	"mime"
)

// Attachment downloads rely on the extension-to-type table; some
// minimal base images ship without /etc/mime.types.
func init() {
	ensureMimeType(".pdf", "application/pdf")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ensureMimeType(".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
