package logger

import "time"

type Timer struct {
	StartTime time.Time
	Name      string
	Console   *Console
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.StartTime)
}

// End logs the elapsed time at debug level and returns it.
func (t *Timer) End() time.Duration {
	d := t.Elapsed()
	t.Console.Logger.Debug(t.Name+" completed", "elapsed", d)
	return d
}
