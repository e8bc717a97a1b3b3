package capture

// Resolution is a named capture tier.
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

// DefaultResolution is the fallback for unknown tier names.
const DefaultResolution = Res480p

// Dims returns the pixel dimensions for the tier.
func (r Resolution) Dims() (width, height int) {
	switch r {
	case Res720p:
		return 1280, 720
	case Res1080p:
		return 1920, 1080
	default:
		return 640, 480
	}
}

// ParseResolution maps a tier name to a Resolution. Unknown names fall back
// to DefaultResolution.
func ParseResolution(s string) Resolution {
	switch Resolution(s) {
	case Res480p, Res720p, Res1080p:
		return Resolution(s)
	default:
		return DefaultResolution
	}
}
