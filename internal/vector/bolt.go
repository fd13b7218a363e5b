package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
	"go.etcd.io/bbolt"
)

// FileName is the bbolt file created inside each collection directory.
const FileName = "index.db"

var (
	bucketMeta    = []byte("meta")
	bucketUnits   = []byte("units")
	bucketVectors = []byte("vectors")

	keyDimensions = []byte("dimensions")
	keyCreatedAt  = []byte("created_at")
)

// ScoredUnit is a unit returned by a semantic search.
type ScoredUnit struct {
	Unit  models.RetrievableUnit
	Score float64
}

// BoltStore is a persistent semantic index for one collection. Units and their
// normalized vectors live in a bbolt file; searches run against an in-memory copy.
type BoltStore struct {
	dir   string
	db    *bbolt.DB
	index *MemoryIndex
	units map[string]models.RetrievableUnit
	order []string
}

// Exists reports whether dir holds a persisted store.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil && !info.IsDir()
}

// Create persists units with their vectors under dir and returns an open store.
// vectors[i] belongs to units[i]. dir must not already hold a store.
func Create(dir string, units []models.RetrievableUnit, vectors [][]float32) (*BoltStore, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("no units to index")
	}
	if len(units) != len(vectors) {
		return nil, fmt.Errorf("units and vectors length mismatch: %d vs %d", len(units), len(vectors))
	}
	if Exists(dir) {
		return nil, fmt.Errorf("store already exists at %s", dir)
	}
	dims := len(vectors[0])
	index, err := NewMemoryIndex(dims)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(units))
	byID := make(map[string]models.RetrievableUnit, len(units))
	for i, u := range units {
		if _, dup := byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit id %q", u.ID)
		}
		ids[i] = u.ID
		byID[u.ID] = u
	}
	if err := index.Add(context.Background(), ids, vectors); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := openDB(dir)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		ub, err := tx.CreateBucketIfNotExists(bucketUnits)
		if err != nil {
			return err
		}
		vb, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		if err := meta.Put(keyDimensions, seqKey(uint64(dims))); err != nil {
			return err
		}
		if err := meta.Put(keyCreatedAt, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
			return err
		}
		for i, u := range units {
			data, err := json.Marshal(u)
			if err != nil {
				return fmt.Errorf("encode unit %s: %w", u.ID, err)
			}
			k := seqKey(uint64(i))
			if err := ub.Put(k, data); err != nil {
				return err
			}
			vec := make([]float32, dims)
			copy(vec, vectors[i])
			utils.NormalizeL2(vec)
			if err := vb.Put(k, float32SliceToBytes(vec)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("write store: %w", err)
	}
	return &BoltStore{dir: dir, db: db, index: index, units: byID, order: ids}, nil
}

// Open attaches an existing store persisted under dir.
func Open(dir string) (*BoltStore, error) {
	if !Exists(dir) {
		return nil, fmt.Errorf("open store %s: %w", dir, os.ErrNotExist)
	}
	db, err := openDB(dir)
	if err != nil {
		return nil, err
	}
	s := &BoltStore{dir: dir, db: db, units: make(map[string]models.RetrievableUnit)}
	var vectors [][]float32
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		ub := tx.Bucket(bucketUnits)
		vb := tx.Bucket(bucketVectors)
		if meta == nil || ub == nil || vb == nil {
			return errors.New("missing buckets")
		}
		raw := meta.Get(keyDimensions)
		if len(raw) != 8 {
			return errors.New("missing dimensions")
		}
		dims := int(binary.BigEndian.Uint64(raw))
		index, err := NewMemoryIndex(dims)
		if err != nil {
			return err
		}
		s.index = index
		return ub.ForEach(func(k, v []byte) error {
			var u models.RetrievableUnit
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("decode unit: %w", err)
			}
			vec := vb.Get(k)
			if len(vec) != dims*4 {
				return fmt.Errorf("vector for unit %s has %d bytes, expected %d", u.ID, len(vec), dims*4)
			}
			s.units[u.ID] = u
			s.order = append(s.order, u.ID)
			vectors = append(vectors, bytesToFloat32Slice(vec))
			return nil
		})
	})
	if err == nil {
		err = s.index.Add(context.Background(), s.order, vectors)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read store %s: %w", dir, err)
	}
	return s, nil
}

func openDB(dir string) (*bbolt.DB, error) {
	db, err := bbolt.Open(filepath.Join(dir, FileName), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return db, nil
}

// Search returns the k units closest to query by cosine similarity.
func (s *BoltStore) Search(ctx context.Context, query []float32, k int) ([]ScoredUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := s.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredUnit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredUnit{Unit: s.units[h.ID], Score: h.Score})
	}
	return out, nil
}

// Units returns the stored units in insertion order.
func (s *BoltStore) Units() []models.RetrievableUnit {
	out := make([]models.RetrievableUnit, len(s.order))
	for i, id := range s.order {
		out[i] = s.units[id]
	}
	return out
}

// Len returns the number of stored units.
func (s *BoltStore) Len() int { return len(s.order) }

// Dimensions returns the vector width of the store.
func (s *BoltStore) Dimensions() int { return s.index.Dimensions() }

// Dir returns the directory backing the store.
func (s *BoltStore) Dir() string { return s.dir }

// Close releases the bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Destroy closes the store and removes its directory.
func (s *BoltStore) Destroy() error {
	closeErr := s.db.Close()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove store dir: %w", err)
	}
	return closeErr
}

func seqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
