package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/yrcho/time-sale/internal/port"
)

const zkLockRoot = "/time-sale/locks"

// ZKLockService implements the lock port on ZooKeeper sequential ephemeral
// nodes. The lease parameter is not used per acquire: the session timeout
// bounds how long a crashed holder can pin the lock, since its ephemeral
// node disappears with the session.
type ZKLockService struct {
	conn *zk.Conn
}

func NewZKLockService(conn *zk.Conn) *ZKLockService {
	return &ZKLockService{conn: conn}
}

func (s *ZKLockService) TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (port.Lock, error) {
	path := zkLockRoot + "/" + key
	if err := s.ensurePath(path); err != nil {
		return nil, err
	}

	node, err := s.conn.CreateProtectedEphemeralSequential(path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("create lock node: %w", err)
	}
	mySeq, err := parseSeq(node)
	if err != nil {
		s.conn.Delete(node, -1)
		return nil, err
	}

	deadline := time.Now().Add(wait)
	for {
		children, _, err := s.conn.Children(path)
		if err != nil {
			s.conn.Delete(node, -1)
			return nil, fmt.Errorf("list lock nodes: %w", err)
		}

		// find the largest sequence below ours; none means we hold the lock
		prevSeq := -1
		prevName := ""
		for _, child := range children {
			seq, err := parseSeq(child)
			if err != nil {
				continue
			}
			if seq < mySeq && seq > prevSeq {
				prevSeq = seq
				prevName = child
			}
		}
		if prevSeq == -1 {
			return &zkLock{conn: s.conn, node: node}, nil
		}

		exists, _, events, err := s.conn.ExistsW(path + "/" + prevName)
		if err != nil {
			s.conn.Delete(node, -1)
			return nil, fmt.Errorf("watch previous lock node: %w", err)
		}
		if !exists {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.conn.Delete(node, -1)
			return nil, port.ErrLockTimeout
		}
		select {
		case <-events:
		case <-time.After(remaining):
			s.conn.Delete(node, -1)
			return nil, port.ErrLockTimeout
		case <-ctx.Done():
			s.conn.Delete(node, -1)
			return nil, ctx.Err()
		}
	}
}

func (s *ZKLockService) ensurePath(path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		_, err := s.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("create lock path %s: %w", current, err)
		}
	}
	return nil
}

// parseSeq extracts the trailing sequence number so ordering survives the
// guid prefix that protected ephemeral nodes carry.
func parseSeq(name string) (int, error) {
	idx := strings.LastIndex(name, "-")
	if idx < 0 || idx == len(name)-1 {
		return 0, fmt.Errorf("lock node %q has no sequence suffix", name)
	}
	seq, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("lock node %q has no sequence suffix: %w", name, err)
	}
	return seq, nil
}

type zkLock struct {
	conn *zk.Conn
	node string
}

func (l *zkLock) Release(ctx context.Context) error {
	err := l.conn.Delete(l.node, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("delete lock node: %w", err)
	}
	return nil
}
