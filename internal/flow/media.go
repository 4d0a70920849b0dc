package flow

// MediaError classifies a camera or microphone failure reported by the browser.
type MediaError string

const (
	MediaDenied   MediaError = "denied"
	MediaNotFound MediaError = "not_found"
	MediaInUse    MediaError = "in_use"
	MediaUnknown  MediaError = "unknown"
)

// ClassifyMediaError maps a browser DOMException name to a MediaError.
func ClassifyMediaError(name string) MediaError {
	switch name {
	case "NotAllowedError", "PermissionDeniedError":
		return MediaDenied
	case "NotFoundError", "DevicesNotFoundError":
		return MediaNotFound
	case "NotReadableError", "TrackStartError":
		return MediaInUse
	default:
		return MediaUnknown
	}
}

// Message returns an actionable message for the user.
func (m MediaError) Message() string {
	switch m {
	case MediaDenied:
		return "Camera and microphone access was denied. Allow access in your browser's site settings and reload the conversation."
	case MediaNotFound:
		return "No camera or microphone was found. Connect a device and reload the conversation."
	case MediaInUse:
		return "Your camera or microphone is in use by another application. Close it and reload the conversation."
	default:
		return "Could not access your camera or microphone. Check your browser permissions and try again."
	}
}
