package toolkit

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// DefaultOutputLimit caps the bytes retained per stream.
	DefaultOutputLimit = 1 << 20

	defaultGracePeriod = 3 * time.Second
)

// StopReason records why an invocation ended.
type StopReason int

const (
	// StopExited means the process ended on its own.
	StopExited StopReason = iota
	// StopTimeout means the runner terminated the process group at the
	// invocation deadline.
	StopTimeout
	// StopCancelled means the caller's context ended the run early. For
	// capture tools that run until signalled this is the normal path.
	StopCancelled
)

func (s StopReason) String() string {
	switch s {
	case StopExited:
		return "exited"
	case StopTimeout:
		return "timeout"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RunSpec describes a single external tool invocation. Arguments are
// passed as an argv vector; nothing ever goes through a shell.
type RunSpec struct {
	// Tool is the registry name recorded on the Invocation.
	Tool string

	// Path is the resolved executable path, normally Descriptor.Path.
	Path string

	// Args are the process arguments, excluding argv[0].
	Args []string

	// Dir is the working directory. Empty inherits the parent's.
	Dir string

	// Env entries are appended to the inherited environment.
	Env []string

	// Stdin is optional input piped to the process.
	Stdin io.Reader

	// Timeout bounds the run. Zero means no limit beyond ctx.
	Timeout time.Duration

	// GracePeriod is how long after SIGTERM before SIGKILL.
	// Defaults to 3 seconds.
	GracePeriod time.Duration

	// OutputLimit caps the bytes retained per stream.
	// Defaults to DefaultOutputLimit.
	OutputLimit int

	// OnLine, when set, receives each stdout line as it is read. Used by
	// long-running tools whose progress must stream to the operator.
	OnLine func(line string)
}

// Invocation is the durable record of one external tool run. It is
// produced even when the run timed out or was cancelled, so callers can
// always persist what happened.
type Invocation struct {
	Tool            string    `json:"tool"`
	Command         []string  `json:"command"`
	Dir             string    `json:"dir,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	ExitCode        int       `json:"exit_code"`
	Stdout          []byte    `json:"-"`
	Stderr          []byte    `json:"-"`
	StdoutTruncated bool      `json:"stdout_truncated,omitempty"`
	StderrTruncated bool      `json:"stderr_truncated,omitempty"`
	Stop            StopReason `json:"-"`
	StopReason      string     `json:"stop_reason"`
}

// Duration is the wall-clock time the invocation ran.
func (inv *Invocation) Duration() time.Duration {
	return inv.EndedAt.Sub(inv.StartedAt)
}

// Runner executes external tools with bounded capture and hard deadlines.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger discards debug output.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{logger: logger}
}

// Run executes spec and returns its Invocation record. A nonzero exit is
// data, not an error. The returned error is non-nil only for:
//
//   - *SpawnError: the process never started; the Invocation is nil
//   - *TimeoutExceededError: the deadline killed the process group; the
//     partial Invocation is still valid
//   - ctx.Err(): the caller cancelled; the partial Invocation is valid
func (r *Runner) Run(ctx context.Context, spec RunSpec) (*Invocation, error) {
	if spec.Path == "" {
		return nil, &SpawnError{Tool: spec.Tool, Err: errors.New("no executable path")}
	}

	limit := spec.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	grace := spec.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	setProcGroup(cmd)

	stdout := newBoundedBuffer(limit)
	stderr := newBoundedBuffer(limit)
	cmd.Stderr = stderr

	// With a line callback the stdout pipe is scanned by hand; Wait must
	// not run until the scanner has drained the pipe.
	var scanDone chan struct{}
	if spec.OnLine != nil {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, &SpawnError{Tool: spec.Tool, Err: err}
		}
		scanDone = make(chan struct{})
		go func() {
			defer close(scanDone)
			scanner := bufio.NewScanner(pipe)
			scanner.Buffer(make([]byte, 64*1024), 1<<20)
			for scanner.Scan() {
				line := scanner.Text()
				stdout.Write([]byte(line + "\n"))
				spec.OnLine(line)
			}
		}()
	} else {
		cmd.Stdout = stdout
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Tool: spec.Tool, Err: err}
	}
	r.logger.Debug("tool started", "tool", spec.Tool, "path", spec.Path, "args", spec.Args)

	waitErr := make(chan error, 1)
	go func() {
		if scanDone != nil {
			<-scanDone
		}
		waitErr <- cmd.Wait()
	}()

	var werr error
	stop := StopExited
	select {
	case werr = <-waitErr:
	case <-runCtx.Done():
		// SIGTERM first so capture tools flush their output files, then
		// SIGKILL the whole group if it lingers.
		signalTerm(cmd)
		select {
		case werr = <-waitErr:
		case <-time.After(grace):
			killGroup(cmd)
			werr = <-waitErr
		}
		if ctx.Err() != nil {
			stop = StopCancelled
		} else {
			stop = StopTimeout
		}
	}

	exitCode := 0
	if werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	inv := &Invocation{
		Tool:            spec.Tool,
		Command:         append([]string{spec.Path}, spec.Args...),
		Dir:             spec.Dir,
		StartedAt:       started,
		EndedAt:         time.Now(),
		ExitCode:        exitCode,
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Stop:            stop,
		StopReason:      stop.String(),
	}
	r.logger.Debug("tool finished",
		"tool", spec.Tool,
		"exit", exitCode,
		"stop", stop.String(),
		"duration", inv.Duration(),
	)

	switch stop {
	case StopTimeout:
		return inv, &TimeoutExceededError{Tool: spec.Tool, Timeout: spec.Timeout}
	case StopCancelled:
		return inv, ctx.Err()
	default:
		return inv, nil
	}
}

// --------------------------------------------------------------------------
// Bounded capture
// --------------------------------------------------------------------------

// boundedBuffer retains at most limit bytes and silently drops the rest,
// remembering that it truncated. Writes never fail so a noisy tool keeps
// running instead of dying on a broken pipe.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
