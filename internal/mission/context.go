package mission

import "time"

// Audio is the playback side of the audio collaborator.
type Audio interface {
	// RequestPlayback queues resource; onComplete fires once playback finishes.
	RequestPlayback(resource string, onComplete func())
	// CancelPlayback drops any queued or playing request for resource.
	CancelPlayback(resource string)
	// AcquireExclusive claims the shared output. False if it is busy.
	AcquireExclusive() bool
	// Release gives the shared output back.
	Release()
}

// Speech is the text-to-speech side of the audio collaborator.
type Speech interface {
	Speak(text, utteranceID string, onComplete func())
	// StopSpeech silences in-flight speech and drops its completion callback.
	StopSpeech()
}

// Resources is the slice of mission runtime state a moment may read or mutate.
type Resources interface {
	WeaponCharged() bool
	ApplyOutcome(Outcome)
}

// ChoicePresenter receives the choice list shown to the player.
type ChoicePresenter interface {
	ChoicesChanged(momentID, description string, choices []Choice)
	ChoicesDismissed(momentID string)
}

// Context carries the capabilities moments use while running.
type Context struct {
	Audio     Audio
	Speech    Speech
	Resources Resources
	Presenter ChoicePresenter

	// SpeechRetry is how long a spoken-text moment waits before retrying
	// when the shared output is busy.
	SpeechRetry time.Duration
}

// DefaultSpeechRetry is used when Context.SpeechRetry is zero.
const DefaultSpeechRetry = 2500 * time.Millisecond

func (c *Context) speechRetry() time.Duration {
	if c.SpeechRetry <= 0 {
		return DefaultSpeechRetry
	}
	return c.SpeechRetry
}
