// Package gdal runs the GDAL command-line tools that transcode rasters to
// Cloud Optimized GeoTIFF and report their coordinate reference systems.
package gdal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Default tool names, resolved through PATH.
const (
	TranslateBinary = "gdal_translate"
	InfoBinary      = "gdalinfo"
)

var (
	// ErrTimeout is returned when a tool exceeds its time bound.
	ErrTimeout = errors.New("gdal tool timed out")
	// ErrEmptyOutput is returned when the tool exits 0 but writes nothing.
	ErrEmptyOutput = errors.New("output file not created or empty")
)

// Transcoder converts src into a COG at dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst, compression string) error
}

// CheckAvailable verifies the named tools are on PATH.
func CheckAvailable(binaries ...string) error {
	for _, b := range binaries {
		path, err := exec.LookPath(b)
		if err != nil {
			return fmt.Errorf("%s not found in PATH: install GDAL 3.1 or newer", b)
		}
		log.Debug().Str("path", path).Msgf("%s found", b)
	}
	return nil
}

// Translate runs gdal_translate with the COG driver.
type Translate struct {
	Binary  string
	Timeout time.Duration
}

var _ Transcoder = Translate{}

// TranslateArgs returns the argument list for converting src to dst.
func TranslateArgs(src, dst, compression string) []string {
	return []string{
		"-of", "COG",
		"-co", "COMPRESS=" + compression,
		"-co", "BIGTIFF=IF_SAFER",
		"-co", "NUM_THREADS=ALL_CPUS",
		"-co", "OVERVIEWS=AUTO",
		src,
		dst,
	}
}

func (t Translate) Transcode(ctx context.Context, src, dst, compression string) error {
	bin := t.Binary
	if bin == "" {
		bin = TranslateBinary
	}
	args := TranslateArgs(src, dst, compression)

	stderr, err := run(ctx, t.Timeout, bin, args, nil)
	if err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		if stderr != "" {
			return fmt.Errorf("%w: %s", ErrEmptyOutput, stderr)
		}
		return ErrEmptyOutput
	}
	log.Debug().Str("src", src).Str("dst", dst).Int64("outputBytes", info.Size()).Str("stderr", stderr).Msg("gdal_translate complete")
	return nil
}

// run executes bin under an optional timeout. It returns captured stderr,
// and on failure an error carrying that stderr verbatim.
func run(ctx context.Context, timeout time.Duration, bin string, args []string, stdout *bytes.Buffer) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdout != nil {
		cmd.Stdout = stdout
	}
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	errText := strings.TrimSpace(stderr.String())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			if errText != "" {
				return errText, fmt.Errorf("%w: %s after %s: %s", ErrTimeout, bin, timeout, errText)
			}
			return errText, fmt.Errorf("%w: %s after %s", ErrTimeout, bin, timeout)
		}
		if errText != "" {
			return errText, fmt.Errorf("%s failed: %w: %s", bin, err, errText)
		}
		return errText, fmt.Errorf("%s failed: %w", bin, err)
	}
	log.Debug().Str("tool", bin).Dur("elapsed", elapsed).Msg("GDAL tool finished")
	return errText, nil
}
