package ir

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nir-project/nir/pkg/nirerr"
)

// PipelineOptions configures one RunPipeline call (spec §6's
// optimization-level and target knobs, kept here rather than threaded
// through every pass as positional arguments).
type PipelineOptions struct {
	NumRegs    int   // physical registers available to RegAlloc
	ScratchReg int32 // register reserved for SSA-deconstruction cycle breaking
	Optimize   bool  // run SCCP, combine, and alloca promotion when true (-O1/-O2)
}

// RunPipeline drives one function context through every compilation
// stage in dependency order (spec §4's pass pipeline), stopping early
// and returning the failure if a stage reports one. The structural
// verifier always runs last and its findings are returned alongside
// any error, since a bug caught there is itself the diagnostic a
// caller needs.
//
// PromoteAllocas runs right after BuildCFG and before SCCP, so SCCP
// sees maximal SSA form. RunSCCP/ApplyConstants then run before GCM
// because they rewrite data operands (proven constants) that
// scheduling and register allocation must see the final form of.
// InsertParallelCopies runs after RegAlloc: the copies it inserts
// reuse vregs RegAlloc already colored, and the one fresh temporary a
// broken parallel-copy cycle needs is pinned directly to ScratchReg
// (see dessa.go) rather than re-entering linear scan for a single
// interval.
func RunPipeline(c *Context, opts PipelineOptions) (*Report, error) {
	c.BuildDefUse()
	c.BuildCFG()
	c.BuildDominators()
	c.FindLoops()

	if opts.Optimize {
		c.PromoteAllocas()
		c.BuildDefUse()
	}

	if opts.Optimize && c.Flags&FlagOptFolding != 0 {
		c.RunSCCP()
		c.ApplyConstants()
		c.PruneDeadTerminators()
		c.BuildDefUse()
	}

	c.RunGCM()
	c.Schedule()

	c.AssignVirtualRegisters()
	c.ComputeLiveRanges()
	c.CoalescePhis()

	if err := c.RegAlloc(opts.NumRegs); err != nil {
		return nil, err
	}
	c.InsertParallelCopies(opts.ScratchReg)

	if opts.Optimize {
		c.Combine()
	}
	c.LayoutBlocks()

	report := c.Verify()
	if !report.OK() {
		return report, nirerr.New("RunPipeline", "verification failed after pipeline run")
	}
	return report, nil
}

// CompileJob is one unit of work for CompilePool: a context ready
// to enter RunPipeline, identified by Name for result reporting.
type CompileJob struct {
	Name    string
	Context *Context
	Options PipelineOptions
}

// CompileResult pairs a job's outcome with its originating name.
type CompileResult struct {
	Name   string
	Report *Report
	Err    error
}

// CompilePool runs independent compilations concurrently: a fixed
// goroutine count drains a channel of jobs, atomic counters track
// throughput without a lock, and a ticker-driven goroutine prints
// periodic progress while the pool drains. A context carries no
// internal synchronization of its own (spec §5), so distinct jobs
// share nothing and need no cross-job locking beyond the results
// accumulator.
type CompilePool struct {
	NumWorkers int

	mu        sync.Mutex
	results   []CompileResult
	compiled  atomic.Int64
	failed    atomic.Int64
	completed atomic.Int64
}

// NewCompilePool creates a pool with the given worker count, defaulting
// to runtime.NumCPU() when numWorkers <= 0.
func NewCompilePool(numWorkers int) *CompilePool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &CompilePool{NumWorkers: numWorkers}
}

// Stats returns the pool's running counters.
func (p *CompilePool) Stats() (compiled, failed int64) {
	return p.compiled.Load(), p.failed.Load()
}

// Run distributes jobs across the pool's workers and blocks until every
// job has been compiled, logging progress every 10 seconds the way
// WorkerPool.RunTasks does (elapsed time, completion fraction, a
// throughput rate, and an ETA derived from the fraction completed so
// far).
func (p *CompilePool) Run(jobs []CompileJob) []CompileResult {
	total := int64(len(jobs))

	ch := make(chan CompileJob, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)

	done := make(chan struct{})
	start := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		var lastCompleted int64
		lastTime := start
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				comp := p.completed.Load()
				elapsed := now.Sub(start)

				dt := now.Sub(lastTime).Seconds()
				dc := comp - lastCompleted
				rate := float64(dc) / dt
				lastCompleted = comp
				lastTime = now

				var eta string
				if comp > 0 {
					remaining := time.Duration(float64(elapsed) * float64(total-comp) / float64(comp))
					eta = remaining.Round(time.Second).String()
				} else {
					eta = "..."
				}

				pct := float64(comp) / float64(total) * 100
				fmt.Printf("  [%s] %d/%d functions (%.1f%%) | %d failed | %.1f/s | ETA %s\n",
					elapsed.Round(time.Second), comp, total, pct, p.failed.Load(), rate, eta)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				p.compileOne(job)
				p.completed.Add(1)
			}
		}()
	}
	wg.Wait()

	close(done)
	elapsed := time.Since(start)
	comp := p.completed.Load()
	fmt.Printf("  [%s] %d/%d functions (100.0%%) | %d failed | DONE\n",
		elapsed.Round(time.Second), comp, total, p.failed.Load())

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompileResult, len(p.results))
	copy(out, p.results)
	return out
}

func (p *CompilePool) compileOne(job CompileJob) {
	report, err := RunPipeline(job.Context, job.Options)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.compiled.Add(1)
	}
	p.mu.Lock()
	p.results = append(p.results, CompileResult{Name: job.Name, Report: report, Err: err})
	p.mu.Unlock()
}
