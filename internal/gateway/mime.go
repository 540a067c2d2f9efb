// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"mime"
	"path"
	"strings"
)

// Types the platform mime table commonly lacks.
var contentTypes = map[string]string{
	".epub": "application/epub+zip",
	".mobi": "application/x-mobipocket-ebook",
	".azw3": "application/vnd.amazon.ebook",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
}

var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".webm": true, ".mkv": true, ".avi": true,
	".mov": true, ".wmv": true, ".flv": true, ".ts": true, ".m2ts": true,
	".mpg": true, ".mpeg": true,
}

func contentType(ext string) string {
	ext = strings.ToLower(ext)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func isVideo(ext string) bool {
	return videoExtensions[strings.ToLower(ext)]
}

// disposition builds a Content-Disposition value. Non-ASCII names are
// encoded as an RFC 2231 extended parameter.
func disposition(kind, remotePath string) string {
	name := path.Base(remotePath)
	if v := mime.FormatMediaType(kind, map[string]string{"filename": name}); v != "" {
		return v
	}
	return kind
}

// withExt replaces the extension of the file name in p.
func withExt(p, ext string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ext
}
