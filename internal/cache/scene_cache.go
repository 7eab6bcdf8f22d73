package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

var zstdEncPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		)
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// SceneCache keeps raw imagery responses on disk, zstd compressed, so a
// re-analysis of the same field and day does not hit the imagery provider.
type SceneCache struct {
	dir string
}

func NewSceneCache(dir string) *SceneCache {
	return &SceneCache{dir: dir}
}

func (sc *SceneCache) Get(fieldID string, day time.Time) ([]byte, bool, error) {
	compressed, err := os.ReadFile(sc.path(fieldID, day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	dec := zstdDecPool.Get().(*zstd.Decoder)
	data, err := dec.DecodeAll(compressed, nil)
	zstdDecPool.Put(dec)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt scene cache entry for field %s: %w", fieldID, err)
	}
	return data, true, nil
}

func (sc *SceneCache) Put(fieldID string, day time.Time, data []byte) error {
	path := sc.path(fieldID, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create scene cache directory: %w", err)
	}

	enc := zstdEncPool.Get().(*zstd.Encoder)
	compressed := enc.EncodeAll(data, nil)
	zstdEncPool.Put(enc)

	return writeAtomic(path, compressed)
}

func (sc *SceneCache) path(fieldID string, day time.Time) string {
	return filepath.Join(sc.dir, filepath.Base(fieldID), day.UTC().Format("2006-01-02")+".tif.zst")
}
