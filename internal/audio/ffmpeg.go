package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegOptions locate the binary and the scratch space.
type FFmpegOptions struct {
	Path    string
	TempDir string
}

// FFmpegConcat writes parts to a scratch directory, concatenates them with
// the ffmpeg concat demuxer and returns the transcoded output. inExt is the
// extension of the parts, outExt the desired container.
func FFmpegConcat(ctx context.Context, opts FFmpegOptions, parts [][]byte, inExt, outExt string) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrNoParts
	}
	bin := opts.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	dir, err := os.MkdirTemp(opts.TempDir, "narrator-stitch-*")
	if err != nil {
		return nil, fmt.Errorf("create stitch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, fmt.Errorf("resolve stitch dir: %w", err)
	}

	listPath, err := writeConcatList(dir, parts, inExt)
	if err != nil {
		return nil, err
	}

	out := filepath.Join(dir, "out."+outExt)
	args := ConcatArgs(listPath, out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg concat: %w: %s", err, tail(stderr.String(), 512))
	}
	return os.ReadFile(out)
}

// writeConcatList stores parts in dir and lists them for the concat demuxer.
// Entries are bare file names, which ffmpeg resolves against the list's own
// directory.
func writeConcatList(dir string, parts [][]byte, inExt string) (string, error) {
	var list strings.Builder
	for i, part := range parts {
		name := fmt.Sprintf("part-%05d.%s", i, inExt)
		if err := os.WriteFile(filepath.Join(dir, name), part, 0o600); err != nil {
			return "", fmt.Errorf("write part %d: %w", i, err)
		}
		list.WriteString("file ")
		list.WriteString(quoteConcatPath(name))
		list.WriteString("\n")
	}
	listPath := filepath.Join(dir, "list.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o600); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return listPath, nil
}

// ConcatArgs builds the ffmpeg arguments for concatenating the files listed
// in listPath into out.
func ConcatArgs(listPath, out string) []string {
	return ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": 0}).
		Output(out).
		OverWriteOutput().
		GetArgs()
}

// quoteConcatPath quotes a path for the concat demuxer list, where a single
// quote inside a quoted string is written as '\''.
func quoteConcatPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
