package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Line is one input line with its 1-based position in the source
type Line struct {
	Number int
	Text   string
}

// LineResult is the outcome of processing one line
type LineResult[T any] struct {
	Line  Line
	Value T
	Err   error
}

// GetError returns the processing error
func (r LineResult[T]) GetError() error {
	return r.Err
}

// BatchProcessor runs a function over many lines with bounded concurrency.
// Results keep input order.
type BatchProcessor[T any] struct {
	fn          func(ctx context.Context, text string) (T, error)
	concurrency int
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor[T any](fn func(ctx context.Context, text string) (T, error), concurrency int) *BatchProcessor[T] {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor[T]{fn: fn, concurrency: concurrency}
}

// ProcessLines processes every line. A failing line does not stop the
// others; lines not started before ctx is done report ctx.Err().
func (b *BatchProcessor[T]) ProcessLines(ctx context.Context, lines []Line) []LineResult[T] {
	results := make([]LineResult[T], len(lines))
	if len(lines) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, line := range lines {
		results[i].Line = line
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		i, line := i, line
		g.Go(func() error {
			results[i] = b.run(ctx, line)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (b *BatchProcessor[T]) run(ctx context.Context, line Line) (res LineResult[T]) {
	res.Line = line
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("line %d panicked: %v", line.Number, r)
		}
	}()
	res.Value, res.Err = b.fn(ctx, line.Text)
	return res
}

// ProcessFile reads lines from a file and processes them
func (b *BatchProcessor[T]) ProcessFile(ctx context.Context, filePath string) ([]LineResult[T], error) {
	lines, err := ReadLinesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return b.ProcessLines(ctx, lines), nil
}

// ReadLinesFromFile reads input lines from a file
func ReadLinesFromFile(filePath string) ([]Line, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadLines(file)
}

// ReadLines reads one utterance per line. Blank lines and lines starting
// with '#' are skipped; duplicates are kept.
func ReadLines(r io.Reader) ([]Line, error) {
	var lines []Line

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, Line{Number: n, Text: text})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
