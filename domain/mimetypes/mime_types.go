package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWebP MIME = "image/webp"
	ImageSVG  MIME = "image/svg+xml"
)

// inline lists what a browser may render in place. SVG and HTML can carry
// scripts and are always served as downloads.
var inline = map[MIME]bool{
	TextPlain:      true,
	ApplicationPDF: true,
	ImagePNG:       true,
	ImageJPEG:      true,
	ImageGIF:       true,
	ImageWebP:      true,
}

// Parse drops the parameters of a detected type ("text/plain; charset=utf-8").
func Parse(detected string) MIME {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

// IsImage decides whether an attachment is sent as an image message.
func IsImage(detected string) bool {
	return strings.HasPrefix(string(Parse(detected)), "image/")
}

// Disposition is the Content-Disposition type to serve an attachment with.
func Disposition(detected string) string {
	if inline[Parse(detected)] {
		return "inline"
	}
	return "attachment"
}
