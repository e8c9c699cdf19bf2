package distributor

import (
	"fmt"
	"io"
)

// Reporter receives the progress of a run as it happens. Any error it returns is fatal to
// the run.
type Reporter interface {
	Generated(numPrimes int) error
	Dividing(numWorkers int) error
	Collecting() error
	Factor(p int) error
	Prime(candidate int) error
}

var (
	_ Reporter = &TextReporter{}
	_ Reporter = nopReporter{}
)

// TextReporter writes the human-readable report:
//
//	generated N primes
//	Dividing the work over K processes
//	now displaying any prime factors found
//
//	<one factor per line, or "<candidate> is prime">
type TextReporter struct {
	w       io.Writer
	factors int
}

func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

func (r *TextReporter) Generated(numPrimes int) error {
	_, err := fmt.Fprintf(r.w, "generated %d primes\n", numPrimes)
	return err
}

func (r *TextReporter) Dividing(numWorkers int) error {
	_, err := fmt.Fprintf(r.w, "Dividing the work over %d processes\n", numWorkers)
	return err
}

func (r *TextReporter) Collecting() error {
	_, err := io.WriteString(r.w, "now displaying any prime factors found\n")
	return err
}

func (r *TextReporter) Factor(p int) error {
	if r.factors == 0 {
		if _, err := io.WriteString(r.w, "\n"); err != nil {
			return err
		}
	}
	r.factors++
	_, err := fmt.Fprintf(r.w, "%d\n", p)
	return err
}

func (r *TextReporter) Prime(candidate int) error {
	_, err := fmt.Fprintf(r.w, "\n%d is prime\n", candidate)
	return err
}

type nopReporter struct{}

func (nopReporter) Generated(int) error { return nil }
func (nopReporter) Dividing(int) error { return nil }
func (nopReporter) Collecting() error { return nil }
func (nopReporter) Factor(int) error { return nil }
func (nopReporter) Prime(int) error { return nil }
