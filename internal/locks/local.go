package locks

import (
	"context"
	"errors"
	"sync"
)

// LocalLocker serialises holders inside one process. It backs single-node
// dev runs where redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	next uint64
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]uint64{}}
}

func (l *LocalLocker) For(key string) (Lock, error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	return &localLock{locker: l, key: key}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uint64
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if _, busy := l.locker.held[l.key]; busy {
		return false, nil
	}
	l.locker.next++
	l.token = l.locker.next
	l.locker.held[l.key] = l.token
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	if l.token == 0 {
		return nil
	}
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.locker.held[l.key] == l.token {
		delete(l.locker.held, l.key)
	}
	l.token = 0
	return nil
}
