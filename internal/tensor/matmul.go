package tensor

import (
	"runtime"
	"sync"
)

type matMulTask struct {
	dst    []float32
	x      []float32
	w      []float32
	rows   int
	in     int
	out    int
	rs, re int
	done   chan struct{}
}

type matMulPool struct {
	size      int
	tasks     chan matMulTask
	doneSlots chan chan struct{}
}

var (
	matMulWorkPool *matMulPool
	matMulPoolOnce sync.Once
)

func getMatMulPool() *matMulPool {
	matMulPoolOnce.Do(func() {
		matMulWorkPool = newMatMulPool()
	})
	return matMulWorkPool
}

func newMatMulPool() *matMulPool {
	size := max(runtime.GOMAXPROCS(0), 1)
	p := &matMulPool{
		size:      size,
		tasks:     make(chan matMulTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.doneSlots <- make(chan struct{}, size)
	}
	for i := 0; i < size; i++ {
		go func() {
			for task := range p.tasks {
				matMulTRange(task.dst, task.x, task.w, task.rows, task.in, task.out, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatMulT computes dst[n,o] = sum_i x[n,i] * w[o,i] for a [rows, in] input
// and an [out, in] weight (the nn.Linear layout). dst must hold rows*out
// values and is overwritten.
//
// Work is split across output columns. Each output element is produced by a
// single sequential dot product, so results do not depend on the worker count.
func MatMulT(dst, x, w []float32, rows, in, out int) {
	if rows == 0 || out == 0 {
		return
	}
	if len(x) < rows*in || len(w) < out*in || len(dst) < rows*out {
		panic("matmul shape mismatch")
	}

	pool := getMatMulPool()
	workers := min(pool.size, out)
	if workers <= 1 || rows*in*out < 1<<14 {
		matMulTRange(dst, x, w, rows, in, out, 0, out)
		return
	}

	chunk := (out + workers - 1) / workers
	done := <-pool.doneSlots
	active := 0
	for i := 0; i < workers; i++ {
		rs := i * chunk
		re := min(rs+chunk, out)
		if rs >= re {
			break
		}
		active++
		pool.tasks <- matMulTask{dst: dst, x: x, w: w, rows: rows, in: in, out: out, rs: rs, re: re, done: done}
	}
	for i := 0; i < active; i++ {
		<-done
	}
	pool.doneSlots <- done
}

// matMulTRange fills output columns [rs, re) for every input row.
func matMulTRange(dst, x, w []float32, rows, in, out, rs, re int) {
	for o := rs; o < re; o++ {
		wr := w[o*in : (o+1)*in]
		for n := 0; n < rows; n++ {
			dst[n*out+o] = Dot(x[n*in:(n+1)*in], wr)
		}
	}
}
