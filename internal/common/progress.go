package common

// Progress checkpoints. The byte stream is mapped onto [ProgressStreamStart, ProgressStreamEnd];
// the bands below and above it belong to connection setup and finalization.
const (
	ProgressStart       = 0
	ProgressConnecting  = 5
	ProgressStreamStart = 10
	ProgressStreamEnd   = 90
	ProgressDone        = 100
)

// StreamProgress maps downloaded/total bytes onto the streaming band.
// It returns ok=false when the total is unknown so callers keep their last value.
func StreamProgress(downloaded, total int64) (progress int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	if downloaded < 0 {
		downloaded = 0
	}

	span := int64(ProgressStreamEnd - ProgressStreamStart)
	p := ProgressStreamStart + int(downloaded*span/total)
	if p > ProgressStreamEnd {
		p = ProgressStreamEnd
	}
	return p, true
}

// BytePercent is the plain percentage of bytes received, clamped to [0,100].
func BytePercent(downloaded, total int64) int {
	if total <= 0 || downloaded <= 0 {
		return 0
	}
	p := int(downloaded * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}
