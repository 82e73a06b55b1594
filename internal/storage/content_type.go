package storage

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// resumeTypes maps accepted resume MIME types to file extensions.
var resumeTypes = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.oasis.opendocument.text":                                 ".odt",
	"text/plain":                                                              ".txt",
}

// DetectContentType resolves a file's MIME type from the provided header,
// then the filename extension, then a sniff of head.
func DetectContentType(provided, filename string, head []byte) string {
	if t := baseType(provided); t != "" && t != "application/octet-stream" {
		return t
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return baseType(t)
	}
	if len(head) > 0 {
		return baseType(http.DetectContentType(head))
	}
	return "application/octet-stream"
}

// IsAllowedResumeType reports whether contentType is an accepted resume format.
func IsAllowedResumeType(contentType string) bool {
	_, ok := resumeTypes[baseType(contentType)]
	return ok
}

// ExtensionFor returns the file extension used for contentType.
func ExtensionFor(contentType string) string {
	if ext, ok := resumeTypes[baseType(contentType)]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func baseType(contentType string) string {
	return strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
}
