package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/h3tag-core/consensus/consensuserrors"
)

// LevelDBStore is the consensus core's reference Store implementation,
// a worked example of the external collaborator spec §6 describes (the
// tests pass a nil store instead). Production deployments are free to swap in any
// Store-conforming database; the persisted file format is a Non-goal.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return &LevelDBStore{db: db}, nil
}

// Get implements Store.
func (s *LevelDBStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return v, nil
}

// Put implements Store.
func (s *LevelDBStore) Put(ctx context.Context, key, value []byte) error {
	if err := s.db.Put(key, value, nil); err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (s *LevelDBStore) Delete(ctx context.Context, key []byte) error {
	if err := s.db.Delete(key, nil); err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return nil
}

// Batch implements Store, committing all ops atomically or none at all.
func (s *LevelDBStore) Batch(ctx context.Context, ops []Op) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Value == nil {
			batch.Delete(op.Key)
		} else {
			batch.Put(op.Key, op.Value)
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	return nil
}

type levelDBIterator struct {
	it iterator.Iterator
}

// Iterator implements Store, returning a snapshot range iterator over
// [start, end).
func (s *LevelDBStore) Iterator(ctx context.Context, start, end []byte) (Iterator, error) {
	rng := &util.Range{Start: start, Limit: end}
	return &levelDBIterator{it: s.db.NewIterator(rng, nil)}, nil
}

func (i *levelDBIterator) Next() bool          { return i.it.Next() }
func (i *levelDBIterator) Key() []byte         { return i.it.Key() }
func (i *levelDBIterator) Value() []byte       { return i.it.Value() }
func (i *levelDBIterator) Error() error        { return i.it.Error() }
func (i *levelDBIterator) Close() error        { i.it.Release(); return nil }

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
