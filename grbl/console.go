// Package grbl is a line oriented console speaking a GRBL style protocol:
// every line is answered with its output followed by ok or error:, and a
// realtime ? is answered with a status report.
package grbl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/mastercactapus/zprobe/coord"
	"github.com/mastercactapus/zprobe/gcode"
	"github.com/mastercactapus/zprobe/probe"
)

// Machine provides the state for status reports.
type Machine interface {
	Idle() bool
	Halted() (bool, string)
	AxisPosition() coord.Point
	WCO() coord.Point
}

// An Observer is called after every executed line with its output.
type Observer func(line, output string)

type Config struct {
	Dispatcher probe.Dispatcher
	Machine    Machine
	Logger     log.FieldLogger
}

// Console executes lines one at a time, regardless of how many transports
// are attached.
type Console struct {
	mx sync.Mutex

	d   probe.Dispatcher
	m   Machine
	log log.FieldLogger

	obsMx     sync.Mutex
	observers []Observer
}

func NewConsole(cfg Config) *Console {
	c := &Console{
		d:   cfg.Dispatcher,
		m:   cfg.Machine,
		log: cfg.Logger,
	}
	if c.log == nil {
		c.log = log.StandardLogger()
	}
	return c
}

// Observe registers fn to be called after every executed line.
func (c *Console) Observe(fn Observer) {
	c.obsMx.Lock()
	c.observers = append(c.observers, fn)
	c.obsMx.Unlock()
}

func (c *Console) notify(line, output string) {
	c.obsMx.Lock()
	obs := c.observers
	c.obsMx.Unlock()
	for _, fn := range obs {
		fn(line, output)
	}
}

// Status returns the current status report.
func (c *Console) Status() Status {
	stat := Status{
		State: "Idle",
		MPos:  c.m.AxisPosition(),
		WCO:   c.m.WCO(),
	}
	if halted, _ := c.m.Halted(); halted {
		stat.State = "Alarm"
	} else if !c.m.Idle() {
		stat.State = "Run"
	}
	return stat
}

// Exec runs line, blocking until it completes, and returns the output
// terminated by ok or an error: line.
func (c *Console) Exec(line string) string {
	c.mx.Lock()
	var buf bytes.Buffer
	err := c.exec(line, &buf)
	if err != nil {
		c.log.WithError(err).WithField("line", line).Warn("command failed")
		fmt.Fprintf(&buf, "error:%s\n", err)
	} else {
		buf.WriteString("ok\n")
	}
	c.mx.Unlock()

	out := buf.String()
	c.notify(line, out)
	return out
}

func (c *Console) exec(line string, out io.Writer) error {
	p := gcode.NewParser(strings.NewReader(line))
	for {
		b, err := p.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		err = b.Validate()
		if err != nil {
			return err
		}
		err = c.d.Dispatch(b, out)
		if err != nil {
			return err
		}
	}
}

type syncWriter struct {
	mx sync.Mutex
	w  io.Writer
}

func (s *syncWriter) WriteString(str string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, err := io.WriteString(s.w, str)
	return err
}

// Serve reads lines from rw and writes their responses until rw is
// exhausted or ctx is done. A ? is answered immediately, even while a line
// is executing.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriter) error {
	w := &syncWriter{w: rw}
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		br := bufio.NewReader(rw)
		var line []byte
		for {
			ch, err := br.ReadByte()
			if err != nil {
				if len(line) > 0 && err == io.EOF {
					select {
					case lines <- string(line):
					case <-ctx.Done():
					}
				}
				readErr <- err
				return
			}
			switch ch {
			case '?':
				err = w.WriteString(c.Status().String() + "\n")
				if err != nil {
					readErr <- err
					return
				}
			case '\r':
			case '\n':
				select {
				case lines <- string(line):
				case <-ctx.Done():
					readErr <- ctx.Err()
					return
				}
				line = line[:0]
			default:
				line = append(line, ch)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err == io.EOF {
					return nil
				}
				return err
			}
			err := w.WriteString(c.Exec(line))
			if err != nil {
				return err
			}
		}
	}
}
