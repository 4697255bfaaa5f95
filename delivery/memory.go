package delivery

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
)

// MemorySender is an in-process EmailSender for tests and local
// development. It records the last code sent to each address.
type MemorySender struct {
	mu    sync.Mutex
	codes map[string]string
	fail  error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{codes: make(map[string]string)}
}

func (m *MemorySender) SendCode(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}
	m.codes[to] = code
	return nil
}

// Code returns the last code delivered to the address, or "".
func (m *MemorySender) Code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

// FailWith makes every subsequent send return err.
func (m *MemorySender) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// MemoryVerifier is an in-process SMSVerifier. StartChallenge generates a
// 6-digit code per number, retrievable via Code for tests.
type MemoryVerifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewMemoryVerifier() *MemoryVerifier {
	return &MemoryVerifier{codes: make(map[string]string)}
}

func (m *MemoryVerifier) StartChallenge(_ context.Context, number string) error {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[number] = padCode(n.Int64())
	return nil
}

func (m *MemoryVerifier) CheckChallenge(_ context.Context, number, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want, ok := m.codes[number]
	if !ok || code != want {
		return false, nil
	}
	delete(m.codes, number)
	return true, nil
}

// Code returns the outstanding challenge code for the number, or "".
func (m *MemoryVerifier) Code(number string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[number]
}

func padCode(n int64) string {
	const digits = 6
	s := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		s[i] = byte('0' + n%10)
		n /= 10
	}
	return string(s)
}
