package pipeline

import "sync"

// workerPool runs batches of indexed tasks over a fixed set of goroutines.
// The workers are long-lived so per-frame dispatch stays allocation-light.
type workerPool struct {
	tasks chan poolTask
	quit  chan struct{}
	wg    sync.WaitGroup
}

type poolTask struct {
	index int
	fn    func(int)
	done  *sync.WaitGroup
}

func newWorkerPool(n int) *workerPool {
	p := &workerPool{
		tasks: make(chan poolTask),
		quit:  make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			t.fn(t.index)
			t.done.Done()
		case <-p.quit:
			return
		}
	}
}

// runBatch submits n indexed tasks and blocks until all have completed.
func (p *workerPool) runBatch(n int, fn func(int)) {
	var done sync.WaitGroup
	done.Add(n)
	for i := 0; i < n; i++ {
		p.tasks <- poolTask{index: i, fn: fn, done: &done}
	}
	done.Wait()
}

func (p *workerPool) stop() {
	close(p.quit)
	p.wg.Wait()
}
