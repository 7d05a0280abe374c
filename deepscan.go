package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DeepScanStatus is the lifecycle state of a deep scan
type DeepScanStatus string

const (
	DeepScanIdle     DeepScanStatus = "idle"
	DeepScanScanning DeepScanStatus = "scanning"
	DeepScanDone     DeepScanStatus = "done"
	DeepScanError    DeepScanStatus = "error"
)

// Terminal reports whether no further transitions happen for this run
func (s DeepScanStatus) Terminal() bool {
	return s == DeepScanDone || s == DeepScanError
}

// Messages for runs that end without an error frame from the analyzer
const (
	msgStreamEndedEarly = "stream ended before the analyzer finished"
	msgDeepScanCanceled = "deep scan cancelled"
)

// DeepScanState is the observable state of the current deep scan
type DeepScanState struct {
	Status  DeepScanStatus
	Text    string
	Message string
}

// Fix returns the code block the analyzer suggested. Only a run that
// finished normally has one.
func (s DeepScanState) Fix() (string, bool) {
	if s.Status != DeepScanDone {
		return "", false
	}
	return ExtractFix(s.Text)
}

// DeepScanRequest is the body of POST /deep-scan
type DeepScanRequest struct {
	Code       string      `json:"code"`
	ScanResult ScanContext `json:"scan_result"`
}

// DeepScanSource opens an event stream for a deep scan. The stream uses the
// data-prefixed line framing understood by ParseLine.
type DeepScanSource interface {
	OpenDeepScan(ctx context.Context, req DeepScanRequest) (io.ReadCloser, error)
}

// DeepScanRun is a handle to one deep scan
type DeepScanRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	final  DeepScanState
}

// Done is closed once the run has reached a terminal state
func (r *DeepScanRun) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its final state
func (r *DeepScanRun) Wait() DeepScanState {
	<-r.done
	return r.final
}

// Cancel stops reading the stream
func (r *DeepScanRun) Cancel() {
	r.cancel()
}

// DeepScanController drives streaming deep scans. At most one run is current;
// starting another cancels the previous one and its output is discarded.
type DeepScanController struct {
	source      DeepScanSource
	idleTimeout time.Duration
	baseURL     string
	metrics     *Metrics
	log         *logrus.Entry

	mu       sync.Mutex
	state    DeepScanState
	gen      uint64
	current  *DeepScanRun
	onUpdate func(DeepScanState)
}

// NewDeepScanController creates a controller reading from source
func NewDeepScanController(source DeepScanSource, cfg *Config, metrics *Metrics, log *logrus.Logger) *DeepScanController {
	return &DeepScanController{
		source:      source,
		idleTimeout: cfg.DeepScanIdleTimeout,
		baseURL:     cfg.APIURL,
		metrics:     metrics,
		log:         componentLogger(log, "deepscan"),
		state:       DeepScanState{Status: DeepScanIdle},
	}
}

// OnUpdate registers a callback invoked on every state change of the current run.
// The callback runs on the reading goroutine and must not block.
func (c *DeepScanController) OnUpdate(fn func(DeepScanState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// Current returns the latest published state
func (c *DeepScanController) Current() DeepScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins a deep scan of code using prior as context for the analyzer.
// Any run still in flight is cancelled first.
func (c *DeepScanController) Start(ctx context.Context, code string, prior AnalysisResult) *DeepScanRun {
	runCtx, cancel := context.WithCancel(ctx)
	run := &DeepScanRun{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
	}
	c.gen++
	gen := c.gen
	c.current = run
	c.mu.Unlock()

	c.publish(gen, DeepScanState{Status: DeepScanScanning})

	req := DeepScanRequest{Code: code, ScanResult: prior.Context()}
	go c.consume(runCtx, gen, run, req)
	return run
}

// Run performs a deep scan and blocks until it ends
func (c *DeepScanController) Run(ctx context.Context, code string, prior AnalysisResult) DeepScanState {
	return c.Start(ctx, code, prior).Wait()
}

// Cancel stops the current run, which ends in the error state
func (c *DeepScanController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
	}
}

// Reset abandons any run in flight and returns to idle
func (c *DeepScanController) Reset() {
	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.publish(gen, DeepScanState{Status: DeepScanIdle})
}

// publish stores st and notifies the listener if gen is still current
func (c *DeepScanController) publish(gen uint64, st DeepScanState) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.state = st
	fn := c.onUpdate
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
	return true
}

func (c *DeepScanController) consume(ctx context.Context, gen uint64, run *DeepScanRun, req DeepScanRequest) {
	start := time.Now()
	final := c.stream(ctx, gen, req)

	run.final = final
	if c.publish(gen, final) {
		c.metrics.countDeepScan(final.Status)
	}
	c.log.WithFields(logrus.Fields{
		"status":   final.Status,
		"chars":    len(final.Text),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("deep scan finished")

	run.cancel()
	close(run.done)
}

// stream reads frames until a terminal condition and returns the final state
func (c *DeepScanController) stream(ctx context.Context, gen uint64, req DeepScanRequest) DeepScanState {
	var text strings.Builder
	fail := func(msg string) DeepScanState {
		return DeepScanState{Status: DeepScanError, Text: text.String(), Message: msg}
	}

	body, err := c.source.OpenDeepScan(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return fail(msgDeepScanCanceled)
		}
		c.log.WithError(err).Warn("deep scan request failed")
		return fail(ErrBackendOffline(c.baseURL, err).Message)
	}
	defer func() { _ = body.Close() }()

	// Closing the body is what unblocks a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	var reader io.Reader = body
	var idle *idleReader
	if c.idleTimeout > 0 {
		idleCtx, idleCancel := context.WithCancel(ctx)
		defer idleCancel()
		stopIdle := context.AfterFunc(idleCtx, func() { _ = body.Close() })
		defer stopIdle()
		idle = newIdleReader(body, c.idleTimeout, idleCancel)
		defer idle.Stop()
		reader = idle
	}

	lines := NewLineReader(reader)
	for {
		line, err := lines.Next()
		if err != nil {
			switch {
			case idle != nil && idle.Fired():
				return fail(fmt.Sprintf("no data from analyzer for %s", c.idleTimeout))
			case ctx.Err() != nil:
				return fail(msgDeepScanCanceled)
			case errors.Is(err, io.EOF):
				c.log.Warn("deep scan stream closed without a terminal frame")
				return fail(msgStreamEndedEarly)
			default:
				c.log.WithError(err).Warn("deep scan stream read failed")
				return fail("stream read failed: " + err.Error())
			}
		}

		res := ParseLine(line)
		c.metrics.countLine(res.Kind)

		switch res.Kind {
		case LineToken:
			text.WriteString(res.Content)
			c.publish(gen, DeepScanState{Status: DeepScanScanning, Text: text.String()})
		case LineDone, LineEnd:
			return DeepScanState{Status: DeepScanDone, Text: text.String()}
		case LineError:
			return DeepScanState{Status: DeepScanError, Text: res.Content}
		default:
			if res.Content != "" {
				c.log.WithField("payload", truncate(res.Content, 80)).Debug("skipping unparsable frame")
			}
		}
	}
}
