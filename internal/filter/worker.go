package filter

import (
	"context"
	"errors"
	"sync"
)

// Op identifies a preprocessing transform.
type Op int

const (
	// OpGrayscalePassport applies the passport grayscale coefficients.
	OpGrayscalePassport Op = iota
	// OpGrayscaleIDCard applies the KTP grayscale coefficients.
	OpGrayscaleIDCard
	// OpBinarize applies the adaptive mean/sigma band clip.
	OpBinarize
	// OpBlueGreen applies the blue-green emphasis threshold.
	OpBlueGreen
)

// ErrWorkerClosed is returned when Apply is called after Close.
var ErrWorkerClosed = errors.New("filter worker closed")

// Default binarization band, in units of sigma below the mean.
const (
	binarizeK1 = 0.45
	binarizeK2 = 1.35
)

type request struct {
	op    Op
	pix   []byte
	reply chan []byte
}

// Worker runs filters on a dedicated goroutine so heavy pixel loops never
// block the orchestrating pipeline stage. Buffer ownership transfers with the
// message: the caller must not touch pix until the reply arrives.
type Worker struct {
	requests  chan request
	closeOnce sync.Once
	done      chan struct{}
}

// NewWorker starts the worker goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.reply <- apply(req.op, req.pix)
		case <-w.done:
			return
		}
	}
}

func apply(op Op, pix []byte) []byte {
	switch op {
	case OpGrayscalePassport:
		return Grayscale(pix, PassportGray())
	case OpGrayscaleIDCard:
		return Grayscale(pix, IDCardGray())
	case OpBinarize:
		return Binarize(pix, binarizeK1, binarizeK2)
	case OpBlueGreen:
		return BlueGreenEmphasis(pix)
	default:
		return pix
	}
}

// Apply runs the transform off the caller's goroutine and hands the buffer
// back once done. The returned slice aliases pix.
func (w *Worker) Apply(ctx context.Context, op Op, pix []byte) ([]byte, error) {
	reply := make(chan []byte, 1)
	select {
	case w.requests <- request{op: op, pix: pix, reply: reply}:
	case <-w.done:
		return nil, ErrWorkerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker goroutine. Safe to call more than once.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}
