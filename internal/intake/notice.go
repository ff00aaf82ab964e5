package intake

import "errors"

// NoticeKind tells the caller how to present a failed intake operation.
type NoticeKind string

const (
	// KindValidation is a local check that failed before any network call.
	KindValidation NoticeKind = "validation"
	// KindCollaborator is a rejected lookup, prediction or creation request.
	KindCollaborator NoticeKind = "collaborator"
	// KindCapability means the device lacks a camera, recognizer or OCR.
	// The channel should be hidden or disabled rather than retried.
	KindCapability NoticeKind = "capability"
	// KindDegraded is a soft miss (nothing heard, nothing read).
	KindDegraded NoticeKind = "degraded"
	// KindSession means the session ended; the whole client has been told.
	KindSession NoticeKind = "session"
)

// Notice is the user-facing error every intake channel returns. Channels
// never panic and never leave a raw transport error for the caller to
// interpret.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (n *Notice) Error() string { return n.Message }

func (n *Notice) Unwrap() error { return n.Err }

func notice(kind NoticeKind, msg string, err error) *Notice {
	return &Notice{Kind: kind, Message: msg, Err: err}
}

// AsNotice returns the Notice in err's chain, if any.
func AsNotice(err error) (*Notice, bool) {
	var n *Notice
	ok := errors.As(err, &n)
	return n, ok
}

// User-facing fallback messages.
const (
	msgEmptyBarcode      = "Please enter or scan a barcode"
	msgLookupFailed      = "No product found for this barcode"
	msgNoImage           = "Please select an image first"
	msgPredictFailed     = "Could not estimate the expiry date from this image"
	msgCreateFailed      = "Failed to add product"
	msgSessionExpired    = "Your session has expired, please sign in again"
	msgNoCamera          = "Camera scanning is not available on this device"
	msgNoSpeech          = "Voice input is not supported on this device"
	msgSpeechTimeout     = "Didn't catch that, please try again"
	msgSpeechCancelled   = "Voice input stopped"
	msgSpeechFailed      = "Voice input failed"
	msgNoOCR             = "Label reading is not available on this device"
	msgOCRFailed         = "Could not read the label"
	msgNothingRecognised = "Nothing recognised, please fill the fields manually"
)
