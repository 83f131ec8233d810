// Package tasks holds the built-in code-review tasks the CLI runs over a
// unified diff.
package tasks

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoDiff is returned when TaskInput.Data carries nothing diff-shaped.
var ErrNoDiff = errors.New("input carries no diff")

// Line is one added line with its number in the new file.
type Line struct {
	Number int
	Text   string
}

// FileChange is the per-file part of a unified diff.
type FileChange struct {
	OldPath string
	Path    string
	Added   int
	Removed int
	Binary  bool
	Lines   []Line // Added lines only
}

// Deleted reports whether the change removes the file.
func (f FileChange) Deleted() bool { return f.Path == "/dev/null" }

// Diff is a parsed unified diff.
type Diff struct {
	Files []FileChange
}

// ParseDiff reads git-style and plain unified diffs. Headers it does not
// recognize are skipped.
func ParseDiff(text string) (*Diff, error) {
	d := &Diff{}
	var cur *FileChange
	newLine, oldLeft, newLeft := 0, 0, 0

	flush := func() {
		if cur != nil {
			d.Files = append(d.Files, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		inHunk := oldLeft > 0 || newLeft > 0
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			cur = &FileChange{}
			if a, b, ok := splitGitHeader(strings.TrimPrefix(line, "diff --git ")); ok {
				cur.OldPath, cur.Path = a, b
			}
		case strings.HasPrefix(line, "--- ") && !inHunk:
			if cur == nil || cur.Added+cur.Removed > 0 {
				flush()
				cur = &FileChange{}
			}
			cur.OldPath = stripPrefix(headerPath(line[4:]), "a/")
		case strings.HasPrefix(line, "+++ ") && !inHunk:
			if cur == nil {
				return nil, fmt.Errorf("line %d: \"+++\" header without \"---\"", lineNo)
			}
			cur.Path = stripPrefix(headerPath(line[4:]), "b/")
		case strings.HasPrefix(line, "@@"):
			if cur == nil {
				return nil, fmt.Errorf("line %d: hunk outside a file", lineNo)
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			newLine, oldLeft, newLeft = h.newStart, h.oldCount, h.newCount
		case strings.HasPrefix(line, "Binary files ") && cur != nil:
			cur.Binary = true
		case inHunk && strings.HasPrefix(line, "+"):
			cur.Added++
			cur.Lines = append(cur.Lines, Line{Number: newLine, Text: line[1:]})
			newLine++
			newLeft--
		case inHunk && strings.HasPrefix(line, "-"):
			cur.Removed++
			oldLeft--
		case inHunk && (strings.HasPrefix(line, " ") || line == ""):
			newLine++
			oldLeft--
			newLeft--
		case strings.HasPrefix(line, `\`):
			// "\ No newline at end of file"
		default:
			oldLeft, newLeft = 0, 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan diff: %w", err)
	}
	flush()
	return d, nil
}

// ChangedLines is the total of added and removed lines.
func (d *Diff) ChangedLines() int {
	n := 0
	for _, f := range d.Files {
		n += f.Added + f.Removed
	}
	return n
}

// diffFrom accepts the forms callers put in TaskInput.Data.
func diffFrom(data any) (*Diff, error) {
	switch v := data.(type) {
	case *Diff:
		if v == nil {
			return nil, ErrNoDiff
		}
		return v, nil
	case string:
		return ParseDiff(v)
	case []byte:
		return ParseDiff(string(v))
	case fmt.Stringer:
		return ParseDiff(v.String())
	}
	return nil, fmt.Errorf("%w: got %T", ErrNoDiff, data)
}

func splitGitHeader(s string) (string, string, bool) {
	idx := strings.Index(s, " b/")
	if !strings.HasPrefix(s, "a/") || idx < 0 {
		return "", "", false
	}
	return s[2:idx], s[idx+3:], true
}

func headerPath(s string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func stripPrefix(p, prefix string) string {
	if p == "/dev/null" {
		return p
	}
	return strings.TrimPrefix(p, prefix)
}

type hunkHeader struct {
	oldCount int
	newStart int
	newCount int
}

// parseHunkHeader reads "@@ -a,b +c,d @@". Omitted counts default to 1.
func parseHunkHeader(header string) (hunkHeader, error) {
	var h hunkHeader
	fields := strings.Fields(header)
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "-") || !strings.HasPrefix(fields[2], "+") {
		return h, fmt.Errorf("malformed hunk header %q", header)
	}
	_, oldCount, err := hunkRange(fields[1][1:])
	if err != nil {
		return h, fmt.Errorf("malformed hunk header %q", header)
	}
	newStart, newCount, err := hunkRange(fields[2][1:])
	if err != nil {
		return h, fmt.Errorf("malformed hunk header %q", header)
	}
	h.oldCount, h.newStart, h.newCount = oldCount, newStart, newCount
	return h, nil
}

func hunkRange(s string) (start, count int, err error) {
	startStr, countStr, hasCount := strings.Cut(s, ",")
	if start, err = strconv.Atoi(startStr); err != nil {
		return 0, 0, err
	}
	if !hasCount {
		return start, 1, nil
	}
	count, err = strconv.Atoi(countStr)
	return start, count, err
}
