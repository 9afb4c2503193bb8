// Package decrypt removes PDF encryption by running an external tool (qpdf
// by default) against a scoped temporary directory.
package decrypt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrDecryptionFailed = errors.New("decrypt: decryption failed")

// DirPrefix names the per-call temporary directories so stale ones can be
// swept on startup.
const DirPrefix = "aquamark-decrypt-"

const (
	inputPlaceholder  = "{in}"
	outputPlaceholder = "{out}"
)

// qpdf exits with 3 when it succeeded with warnings.
const qpdfWarningExit = 3

// Options configures a Decrypter.
type Options struct {
	// Tool is the executable to run. Defaults to "qpdf".
	Tool string
	// Args may reference {in} and {out}. Defaults to --decrypt {in} {out}.
	Args    []string
	TempDir string
	Timeout time.Duration
	// Probe reports whether the bytes are usable without decryption.
	Probe func([]byte) error
	Log   *zap.Logger
}

type Decrypter struct {
	tool    string
	args    []string
	tempDir string
	timeout time.Duration
	probe   func([]byte) error
	log     *zap.Logger
}

func New(opts Options) *Decrypter {
	d := &Decrypter{
		tool:    opts.Tool,
		args:    opts.Args,
		tempDir: opts.TempDir,
		timeout: opts.Timeout,
		probe:   opts.Probe,
		log:     opts.Log,
	}
	if d.tool == "" {
		d.tool = "qpdf"
	}
	if len(d.args) == 0 {
		d.args = []string{"--decrypt", inputPlaceholder, outputPlaceholder}
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Decrypt returns data unchanged when it already opens without decryption,
// otherwise it runs the external tool.
func (d *Decrypter) Decrypt(ctx context.Context, data []byte) ([]byte, error) {
	if d.probe != nil {
		err := d.probe(data)
		if err == nil {
			return data, nil
		}
		d.log.Debug("document needs decryption", zap.Error(err))
	}
	return d.DecryptAlways(ctx, data)
}

// DecryptAlways runs the external tool regardless of whether the document is
// encrypted. Temporary files never outlive the call.
func (d *Decrypter) DecryptAlways(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrDecryptionFailed)
	}

	dir, err := os.MkdirTemp(d.tempDir, DirPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrDecryptionFailed, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			d.log.Warn("failed to remove decrypt temp dir", zap.String("dir", dir), zap.Error(err))
		}
	}()

	inPath := filepath.Join(dir, "input.pdf")
	outPath := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: write input: %v", ErrDecryptionFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.tool, d.expandArgs(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != qpdfWarningExit {
			if ctx.Err() != nil {
				err = fmt.Errorf("%v (%v)", err, ctx.Err())
			}
			d.log.Warn("decryption tool failed",
				zap.String("tool", d.tool),
				zap.String("stderr", strings.TrimSpace(stderr.String())),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", ErrDecryptionFailed, d.tool, err)
		}
		d.log.Debug("decryption tool reported warnings", zap.String("stderr", strings.TrimSpace(stderr.String())))
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", ErrDecryptionFailed, err)
	}
	d.log.Debug("document decrypted", zap.Int("bytes", len(out)), zap.Duration("took", time.Since(start)))
	return out, nil
}

func (d *Decrypter) expandArgs(in, out string) []string {
	args := make([]string, len(d.args))
	for i, a := range d.args {
		a = strings.ReplaceAll(a, inputPlaceholder, in)
		args[i] = strings.ReplaceAll(a, outputPlaceholder, out)
	}
	return args
}

// SweepStale removes temporary directories left behind by a crashed process.
func SweepStale(tempDir string) (int, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(tempDir, DirPrefix+"*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if os.RemoveAll(m) == nil {
			removed++
		}
	}
	return removed, nil
}
