package ds1054

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotmc/eedlab"
)

// simScope models the waveform subsystem of a DS1000Z closely enough to
// drive the acquirer.
type simScope struct {
	mu sync.Mutex

	depth    int
	xinc     float64
	cal      Calibration
	code     func(i int) byte // sample code at 0-based memory index
	header   int
	newline  bool        // terminate data replies with "\n"
	short    map[int]int // window start -> bytes to drop from the reply
	failData error
	garbage  map[string]int // query -> windows read before its reply is garbled

	running        bool
	source         string
	mode, format   string
	start, stop    int
	log            []string
	dataQueries    int
	windows        []Window
	screen         string
	calAfterWindow []Calibration // per window calibration, overrides cal
}

func newSim(depth int) *simScope {
	return &simScope{
		depth:   depth,
		xinc:    1e-9,
		cal:     Calibration{YOrigin: 0, YReference: 0, YIncrement: 0.01},
		code:    func(i int) byte { return byte(i % 256) },
		header:  12,
		running: true,
		source:  "CHAN1",
		mode:    "NORM",
		format:  "ASC",
		start:   1,
		stop:    1200,
	}
}

func (s *simScope) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, cmd)
	verb, arg, _ := strings.Cut(cmd, " ")
	switch strings.ToUpper(verb) {
	case ":STOP":
		s.running = false
	case ":RUN":
		s.running = true
	case "WAV:SOURCE":
		s.source = arg
	case "WAV:MODE":
		s.mode = arg
	case "WAV:FORMAT":
		s.format = arg
	case "WAV:START":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return err
		}
		s.start = n
	case "WAV:STOP":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return err
		}
		s.stop = n
	}
	return nil
}

func (s *simScope) Query(cmd string, maxBytes int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, cmd)
	if n, ok := s.garbage[cmd]; ok && len(s.windows) >= n {
		return []byte("AUTO\n"), nil
	}
	var reply string
	switch cmd {
	case "*IDN?":
		reply = "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA000000001,00.04.04.SP4"
	case ":acquire:mdepth?":
		reply = strconv.Itoa(s.depth)
	case ":waveform:xincrement?":
		reply = strconv.FormatFloat(s.xinc, 'E', 6, 64)
	case ":wav:yorigin?":
		reply = strconv.FormatFloat(s.calibration().YOrigin, 'g', -1, 64)
	case ":wav:yreference?":
		reply = strconv.FormatFloat(s.calibration().YReference, 'g', -1, 64)
	case ":wav:yincrement?":
		reply = strconv.FormatFloat(s.calibration().YIncrement, 'E', 6, 64)
	case "WAV:SOURCE?":
		reply = s.source
	case "WAV:MODE?":
		reply = s.mode
	case "WAV:FORMAT?":
		reply = s.format
	case "WAV:DATA?":
		return s.data(maxBytes)
	default:
		return nil, fmt.Errorf("sim: unknown query %q", cmd)
	}
	return []byte(reply + "\n"), nil
}

func (s *simScope) calibration() Calibration {
	if n := len(s.windows); n > 0 && n <= len(s.calAfterWindow) {
		return s.calAfterWindow[n-1]
	}
	return s.cal
}

func (s *simScope) data(maxBytes int) ([]byte, error) {
	s.dataQueries++
	if s.failData != nil {
		return nil, s.failData
	}
	if s.mode == "NORMAL" {
		return []byte(s.screen + "\n"), nil
	}
	if s.running {
		return nil, errors.New("sim: memory read while running")
	}
	if s.mode != "MAX" || s.format != "BYTE" {
		return nil, fmt.Errorf("sim: raw read in mode %s format %s", s.mode, s.format)
	}
	if s.start < 1 || s.stop > s.depth || s.start > s.stop {
		return nil, fmt.Errorf("sim: bad window [%d,%d]", s.start, s.stop)
	}
	w := Window{Start: s.start, Stop: s.stop}
	s.windows = append(s.windows, w)
	b := []byte(fmt.Sprintf("#9%09d", w.Width()))
	for len(b) < s.header {
		b = append(b, ' ')
	}
	for i := w.Start - 1; i < w.Stop; i++ {
		b = append(b, s.code(i))
	}
	if s.newline {
		b = append(b, '\n')
	}
	if drop, ok := s.short[w.Start]; ok {
		b = b[:len(b)-drop]
	}
	if maxBytes > 0 && len(b) > maxBytes {
		b = b[:maxBytes]
	}
	return b, nil
}

func (s *simScope) Close() error { return nil }

// Log returns the commands received.
func (s *simScope) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func (s *simScope) count(cmd string) int {
	n := 0
	for _, c := range s.Log() {
		if c == cmd {
			n++
		}
	}
	return n
}

func newScope(sim *simScope, opts ...Option) *Scope {
	return New(eedlab.NewInstrument(sim), opts...)
}

func (s *simScope) Sent(cmd string) bool { return s.count(cmd) > 0 }
