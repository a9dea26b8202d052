package uploader

import (
	"context"
	"sort"
	"sync"

	"github.com/ethpandaops/snapshotoor/pkg/storage"
)

// fakeStore is an in-memory Store for pipeline tests. Hooks inject
// faults per destination key.
type fakeStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	sessions   map[string]*fakeSession
	preflights int

	initiateErr map[string]error
	completeErr map[string]error

	// partHook runs before a part is stored; returning an error fails
	// the attempt.
	partHook func(ctx context.Context, key string, index int32) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     make(map[string][]byte),
		sessions:    make(map[string]*fakeSession),
		initiateErr: make(map[string]error),
		completeErr: make(map[string]error),
	}
}

func (f *fakeStore) Preflight(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.preflights++

	return nil
}

func (f *fakeStore) Initiate(_ context.Context, key string, encrypt bool) (storage.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.initiateErr[key]; err != nil {
		return nil, err
	}

	sess := &fakeSession{
		store:    f,
		key:      key,
		encrypt:  encrypt,
		parts:    make(map[int32][]byte),
		attempts: make(map[int32]int),
	}
	f.sessions[key] = sess

	return sess, nil
}

func (f *fakeStore) Cancel(_ context.Context, session storage.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session.(*fakeSession).cancelled = true
}

func (f *fakeStore) session(key string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sessions[key]
}

func (f *fakeStore) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[key]

	return data, ok
}

type fakeSession struct {
	store     *fakeStore
	key       string
	encrypt   bool
	parts     map[int32][]byte
	attempts  map[int32]int
	completed bool
	cancelled bool
}

func (s *fakeSession) Key() string {
	return s.key
}

func (s *fakeSession) UploadPart(ctx context.Context, index int32, data []byte) error {
	s.store.mu.Lock()
	s.attempts[index]++
	hook := s.store.partHook
	s.store.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, s.key, index); err != nil {
			return err
		}
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	s.parts[index] = append([]byte(nil), data...)

	return nil
}

func (s *fakeSession) Complete(context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if err := s.store.completeErr[s.key]; err != nil {
		return err
	}

	indices := make([]int32, 0, len(s.parts))
	for index := range s.parts {
		indices = append(indices, index)
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	content := []byte{}
	for _, index := range indices {
		content = append(content, s.parts[index]...)
	}

	s.completed = true
	s.store.objects[s.key] = content

	return nil
}
