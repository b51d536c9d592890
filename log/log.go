// Package log provides the structured, leveled logger used throughout
// headernet. It follows the conventions of the teacher's own internal log
// package: a small Logger interface, key/value context pairs, and a
// terminal-aware formatter that colorizes output when writing to a TTY.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

// Logger writes leveled, key/value-annotated messages. New returns a child
// logger that prepends its own context to every record, the way
// log.New("peer", id) scopes every subsequent line to that peer in the
// teacher's codebase.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
	h   *handler
}

type handler struct {
	mu       sync.Mutex
	out      io.Writer
	useColor bool
	minLvl   Lvl
}

var root = &logger{h: newHandler(os.Stderr)}

func newHandler(w io.Writer) *handler {
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if useColor {
		w = colorable.NewColorable(w.(*os.File))
	}
	return &handler{out: w, useColor: useColor, minLvl: LvlTrace}
}

// Root returns the package-level root logger.
func Root() Logger { return root }

// New creates a new logger scoped with the given key/value context.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

// SetOutput redirects the root logger's output (tests use this to capture
// log lines instead of polluting stderr).
func SetOutput(w io.Writer) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.out = w
	root.h.useColor = false
}

// SetLevel sets the minimum level emitted by the root logger's handler.
func SetLevel(l Lvl) {
	root.h.mu.Lock()
	defer root.h.mu.Unlock()
	root.h.minLvl = l
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &logger{ctx: merged, h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	l.h.mu.Lock()
	defer l.h.mu.Unlock()
	if lvl > l.h.minLvl {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000")
	if l.h.useColor {
		c := levelColor[lvl]
		fmt.Fprintf(&b, "%s %s %s", ts, c.Sprint(lvl.String()), msg)
	} else {
		fmt.Fprintf(&b, "%s [%s] %s", ts, lvl.String(), msg)
	}
	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	b.WriteByte('\n')
	io.WriteString(l.h.out, b.String())
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

// Package-level convenience wrappers over the root logger.
func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
