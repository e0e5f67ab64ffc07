package api

// API limits and constants.
const (
	// MaxUploadSize is the maximum allowed size for a voice clone upload (50 MB).
	MaxUploadSize = 50 << 20

	// maxSpeakBody bounds JSON bodies on the audio endpoints.
	maxSpeakBody = 64 << 10

	// sampleField is the multipart field carrying voice samples.
	sampleField = "files"
)

// CachePrivateDay lets the app keep narrated audio for a day.
const CachePrivateDay = "private, max-age=86400"
