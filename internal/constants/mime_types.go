package constants

// ImageMimeTypes maps accepted upload extensions to their MIME types
var ImageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jfif": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"

// DefaultImageExtension is used when neither the filename nor the content type reveal one
const DefaultImageExtension = "jpg"

// DefaultImageTypes lists the extensions accepted for uploads when none are configured
var DefaultImageTypes = []string{"jpg", "jpeg", "png", "gif", "webp"}
