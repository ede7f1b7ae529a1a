package logger

import (
	"fmt"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type Spinner struct {
	Message string
	Console *Console

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newSpinner(message string, c *Console) *Spinner {
	return &Spinner{
		Message: message,
		Console: c,
		stop:    make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	if !s.Console.Interactive {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(s.Console.Out, "\r%s %s ", spinnerFrames[i%len(spinnerFrames)], s.Message)
			select {
			case <-s.stop:
				fmt.Fprint(s.Console.Out, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line and logs message as a success or an error.
// Only the first call has an effect.
func (s *Spinner) Stop(success bool, message string) {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()

		if success {
			s.Console.Success("%s", message)
		} else {
			s.Console.Error("%s", message)
		}
	})
}
