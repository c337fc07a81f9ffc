package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// stderrLimit caps how much ffmpeg chatter is kept for error messages.
const stderrLimit = 8 << 10

type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - stderrLimit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

// pipeWriter feeds raw RGBA frames to an ffmpeg process over stdin.
type pipeWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	once sync.Once
	err  error
}

func startPipe(ctx context.Context, binary string, args []string) (*pipeWriter, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &pipeWriter{cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func (p *pipeWriter) WriteFrame(img *image.RGBA) error {
	if err := writeRawRGBA(p.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, p.stderr.String())
	}
	return nil
}

func (p *pipeWriter) Close() error {
	p.once.Do(func() {
		p.stdin.Close()
		if err := p.cmd.Wait(); err != nil {
			p.err = fmt.Errorf("ffmpeg wait error: %w: %s", err, p.stderr.String())
		}
	})
	return p.err
}

func (p *pipeWriter) Abort() {
	p.once.Do(func() {
		p.stdin.Close()
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
		p.err = errors.New("ffmpeg aborted")
	})
}

// FrameReader yields decoded raw RGBA frames.
type FrameReader interface {
	// ReadFrame fills dst with the next frame; io.EOF after the last one.
	ReadFrame(dst *image.RGBA) error
	Close() error
}

// pipeReader reads raw RGBA frames from an ffmpeg process's stdout.
type pipeReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	once sync.Once
	err  error
}

func startReader(ctx context.Context, binary string, args []string) (*pipeReader, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &pipeReader{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (p *pipeReader) ReadFrame(dst *image.RGBA) error {
	_, err := io.ReadFull(p.stdout, dst.Pix)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("truncated frame: %w: %s", err, p.stderr.String())
	default:
		return fmt.Errorf("read frame: %w", err)
	}
}

// Close stops the decoder. A decoder closed before EOF is killed.
func (p *pipeReader) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_, _ = io.Copy(io.Discard, p.stdout)
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.err = fmt.Errorf("ffmpeg decoder: %w", err)
		}
	})
	return p.err
}
