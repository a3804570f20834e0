package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// TestableSerialPort is an in-memory SerialPorter. Reads block until data
// is pushed with AddData, EOF is signalled with CloseInput, or the port is
// closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	cond     *sync.Cond
	input    bytes.Buffer
	written  bytes.Buffer
	eof      bool
	closed   bool
	writeErr error
	shortBy  int
}

// NewTestableSerialPort returns an empty port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// AddData makes data available to readers.
func (p *TestableSerialPort) AddData(data string) {
	p.mu.Lock()
	p.input.WriteString(data)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// CloseInput makes reads return EOF once the buffered input is consumed.
func (p *TestableSerialPort) CloseInput() {
	p.mu.Lock()
	p.eof = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// FailWrites makes subsequent writes return err.
func (p *TestableSerialPort) FailWrites(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// ShortWrites makes subsequent writes report n fewer bytes than given.
func (p *TestableSerialPort) ShortWrites(n int) {
	p.mu.Lock()
	p.shortBy = n
	p.mu.Unlock()
}

// Written returns everything written so far.
func (p *TestableSerialPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *TestableSerialPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.input.Len() == 0 && !p.eof && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return 0, errors.New("serial port closed")
	}
	if p.input.Len() == 0 {
		return 0, io.EOF
	}
	return p.input.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("serial port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written.Write(b)
	return max(len(b)-p.shortBy, 0), nil
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}
