package chunking

// Handler receives the segments produced by ChunkAudio.
type Handler interface {
	// ProcessSegment transcribes one segment. The slice is owned by the
	// handler. A non-nil error aborts the whole ChunkAudio call.
	ProcessSegment(samples []float32) (string, error)

	// ReportProgress is called after each successfully processed segment with
	// the share of the input consumed so far, in percent.
	ReportProgress(percent float64)
}

// HandlerFuncs adapts a pair of functions to the Handler interface. A nil
// Progress is ignored.
type HandlerFuncs struct {
	Process  func(samples []float32) (string, error)
	Progress func(percent float64)
}

// ProcessSegment calls h.Process.
func (h HandlerFuncs) ProcessSegment(samples []float32) (string, error) {
	return h.Process(samples)
}

// ReportProgress calls h.Progress if set.
func (h HandlerFuncs) ReportProgress(percent float64) {
	if h.Progress != nil {
		h.Progress(percent)
	}
}

var _ Handler = HandlerFuncs{}
