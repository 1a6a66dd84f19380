package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

// maxLineSize fits the hex encoding of the largest frame with room to spare.
const maxLineSize = 64 * 1024

// WithHelperLogger sets the logger for the helper
func WithHelperLogger(logger *slog.Logger) func(h *Helper) {
	return func(h *Helper) {
		h.logger = logger.With(slog.String("helper", h.name))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(h *Helper) {
	return func(h *Helper) {
		h.parseErrorsThreshold = threshold
	}
}

// Helper runs an external program that owns the BLE connection and prints
// one notification per line on stdout. Stopping the session kills the program,
// which is expected to unsubscribe and disconnect on exit.
type Helper struct {
	name string
	args []string

	isReceiving atomic.Bool

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewHelper creates a new Helper instance with a discard logger. The program
// is resolved with FindRuntime.
func NewHelper(program string, args []string, options ...func(h *Helper)) (*Helper, error) {
	path, err := FindRuntime(program)
	if err != nil {
		return nil, fmt.Errorf("helper: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	h := Helper{
		name:                 path,
		args:                 args,
		logger:               logger,
		parseErrorsThreshold: ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&h)
	}

	return &h, nil
}

// Receive starts the helper and delivers frames until ctx is cancelled or the
// helper exits.
func (h *Helper) Receive(ctx context.Context, handle FrameHandler) error {
	if !h.isReceiving.CompareAndSwap(false, true) {
		return fmt.Errorf("helper is already running")
	}
	defer h.isReceiving.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, h.name, h.args...)
	cmd.WaitDelay = time.Second // bounds Wait when the helper leaves children holding its output

	// io.Pipe keeps Wait from returning before every line has been read
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting command: %w", err)
	}

	h.logger.Info("receiving frames...")

	done := make(chan error, 3) // expects three results from three goroutines

	go h.handleStdout(stdout, handle, done)
	go h.handleStderr(stderr, done)
	go func() {
		err := h.handleCmdWait(ctx, cmd)
		_ = stdoutW.Close()
		_ = stderrW.Close()
		done <- err
	}()

	var errs []error
	for i := 0; i < cap(done); i++ {
		if err := <-done; err != nil {
			cancel() // stop the helper on error
			h.logger.Error(err.Error())

			errs = append(errs, err)
		}
	}

	h.logger.Info("frames reception stopped")

	if ctx.Err() != nil {
		return nil // stopped by the session
	}

	return fmt.Errorf("%w: %w", ErrTransportDisconnected, errors.Join(errs...))
}

// IsReceiving returns true if the helper is running
func (h *Helper) IsReceiving() bool {
	return h.isReceiving.Load()
}

// handleStdout reads from stdout, parses frames and passes them to the handler.
func (h *Helper) handleStdout(stdout io.ReadCloser, handle FrameHandler, done chan<- error) {
	defer stdout.Close() // unblocks the helper output copy on early return

	var parseErrors uint8

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		frame, err := ParseFrameLine(line)
		if errors.Is(err, ErrNotFrame) {
			h.logger.Info(line)
			continue
		}
		if err != nil {
			parseErrors++
			h.logger.Warn(fmt.Sprintf("error parsing frame: %s", err.Error()), slog.String("line", line))

			if parseErrors >= h.parseErrorsThreshold {
				done <- ErrTooManyParseErrors
				return
			}

			continue
		}

		parseErrors = 0 // reset counter

		handle(frame)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleStderr reads from stderr and logs it.
func (h *Helper) handleStderr(stderr io.ReadCloser, done chan<- error) {
	defer stderr.Close()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		h.logger.Warn(fmt.Sprintf("helper >> %s", line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleCmdWait waits for the helper to exit. An exit caused by the session
// stopping is not an error.
func (h *Helper) handleCmdWait(ctx context.Context, cmd *exec.Cmd) error {
	err := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return errors.New("helper exited")
	}

	return fmt.Errorf("helper exited with error: %w", err)
}
