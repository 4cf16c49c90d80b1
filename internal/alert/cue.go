package alert

import "errors"

// Cue renders the alert for a silence level
type Cue interface {
	Play(level int) error
}

// CueFunc adapts a function to Cue
type CueFunc func(level int) error

func (f CueFunc) Play(level int) error {
	return f(level)
}

// Cues plays every cue in order and joins their errors
type Cues []Cue

func (c Cues) Play(level int) error {
	var errs []error
	for _, cue := range c {
		if err := cue.Play(level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
