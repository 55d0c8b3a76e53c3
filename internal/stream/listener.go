package stream

// Listener receives session notifications. Calls are made outside the
// session lock, once per event, from whichever goroutine caused the event.
type Listener interface {
	PlaybackStarted(id string)
	PlaybackPaused(id string, paused bool)
	PlaybackStopped(id string)
	TrackChanged(id string, tags []string)
	Error(id string, err error)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) PlaybackStarted(string)        {}
func (NopListener) PlaybackPaused(string, bool)   {}
func (NopListener) PlaybackStopped(string)        {}
func (NopListener) TrackChanged(string, []string) {}
func (NopListener) Error(string, error)           {}

// Listeners fans every notification out to each listener in order.
type Listeners []Listener

func (ls Listeners) PlaybackStarted(id string) {
	for _, l := range ls {
		l.PlaybackStarted(id)
	}
}

func (ls Listeners) PlaybackPaused(id string, paused bool) {
	for _, l := range ls {
		l.PlaybackPaused(id, paused)
	}
}

func (ls Listeners) PlaybackStopped(id string) {
	for _, l := range ls {
		l.PlaybackStopped(id)
	}
}

func (ls Listeners) TrackChanged(id string, tags []string) {
	for _, l := range ls {
		l.TrackChanged(id, tags)
	}
}

func (ls Listeners) Error(id string, err error) {
	for _, l := range ls {
		l.Error(id, err)
	}
}
