package network

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the listener needs, so the read
// loop can be driven without a real network.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens listening sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens sockets with net.ListenUDP. *net.UDPConn
// satisfies UDPSocket directly.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket replays queued datagrams. Once the queue is drained every
// read times out, as a quiet socket with a deadline would.
type MockUDPSocket struct {
	mu           sync.Mutex
	datagrams    []MockDatagram
	next         int
	closed       bool
	readErr      error
	readBuffer   int
	LocalAddress *net.UDPAddr
}

// MockDatagram is one queued read.
type MockDatagram struct {
	Data []byte
	From *net.UDPAddr
}

// NewMockUDPSocket returns a socket that will yield datagrams in order.
func NewMockUDPSocket(datagrams ...MockDatagram) *MockUDPSocket {
	return &MockUDPSocket{
		datagrams:    datagrams,
		LocalAddress: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4211},
	}
}

// Queue appends datagrams to be read.
func (m *MockUDPSocket) Queue(d ...MockDatagram) {
	m.mu.Lock()
	m.datagrams = append(m.datagrams, d...)
	m.mu.Unlock()
}

// FailNextRead makes the next read return err.
func (m *MockUDPSocket) FailNextRead(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Drained reports whether every queued datagram has been read.
func (m *MockUDPSocket) Drained() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next >= len(m.datagrams)
}

func (m *MockUDPSocket) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockUDPSocket) ReadBuffer() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBuffer
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return 0, nil, net.ErrClosed
	case m.readErr != nil:
		err := m.readErr
		m.readErr = nil
		return 0, nil, err
	case m.next >= len(m.datagrams):
		// Yield briefly so a polling read loop does not spin hot.
		m.mu.Unlock()
		time.Sleep(time.Millisecond)
		m.mu.Lock()
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	d := m.datagrams[m.next]
	m.next++
	return copy(b, d.Data), d.From, nil
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	m.readBuffer = bytes
	m.mu.Unlock()
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockUDPSocket) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.LocalAddress }

// MockUDPSocketFactory hands out a fixed socket, or Err.
type MockUDPSocketFactory struct {
	Socket UDPSocket
	Err    error

	mu    sync.Mutex
	calls []string
}

func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, network+" "+laddr.String())
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

// Calls returns the "network addr" pairs passed to ListenUDP.
func (f *MockUDPSocketFactory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
