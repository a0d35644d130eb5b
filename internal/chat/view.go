package chat

// View tracks the read position of the conversation pane during streaming.
// The invariant: auto-scroll fires if and only if the viewer was already
// at (or near) the bottom when the content arrived. A reader who scrolled up
// is never yanked back down; they get a new-message notice when the stream
// ends and can jump to the start of the newest assistant message.
type View struct {
	atBottom   bool
	streaming  bool
	notice     bool
	missedText bool
}

// NewView returns a view positioned at the bottom.
func NewView() *View {
	return &View{atBottom: true}
}

// SetAtBottom records the viewer's scroll position.
func (v *View) SetAtBottom(atBottom bool) {
	v.atBottom = atBottom
}

// StreamStarted marks the beginning of a turn's stream.
func (v *View) StreamStarted() {
	v.streaming = true
	v.missedText = false
	v.notice = false
}

// ContentArrived reports whether the view should auto-scroll for newly
// streamed content. Content that lands while the viewer is scrolled up is
// remembered so the notice can be shown when the stream ends.
func (v *View) ContentArrived() bool {
	if v.atBottom {
		return true
	}
	v.missedText = true
	return false
}

// StreamEnded marks the end of the stream and reports whether the
// new-message notice should be shown. It fires at most once per stream.
func (v *View) StreamEnded() bool {
	if !v.streaming {
		return false
	}
	v.streaming = false
	v.notice = v.missedText
	v.missedText = false
	return v.notice
}

// NoticeVisible reports whether the new-message notice is currently shown.
func (v *View) NoticeVisible() bool {
	return v.notice
}

// JumpToLatest is the explicit user action on the notice: the view moves to
// the start of the newest assistant message (not the very bottom) and the
// notice clears.
func (v *View) JumpToLatest() {
	v.notice = false
	v.atBottom = true
}
