package raster

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
)

// vsiPrefix routes GDAL file access to memHandler instead of the filesystem.
const vsiPrefix = "croplensmem://"

// memHandler serves registered views to GDAL. Keys are unique per decode call
// and removed as soon as the dataset is closed.
type memHandler struct {
	views sync.Map
}

func (h *memHandler) lookup(key string) (View, error) {
	v, ok := h.views.Load(strings.TrimPrefix(key, vsiPrefix))
	if !ok {
		return View{}, fmt.Errorf("%s: %w", key, os.ErrNotExist)
	}
	return v.(View), nil
}

func (h *memHandler) ReadAt(key string, buf []byte, off int64) (int, error) {
	v, err := h.lookup(key)
	if err != nil {
		return 0, err
	}
	return v.ReadAt(buf, off)
}

// Size doubles as an existence probe: GDAL asks for sidecar files
// (.aux.xml, .ovr, .msk) that must report as missing.
func (h *memHandler) Size(key string) (int64, error) {
	v, err := h.lookup(key)
	if err != nil {
		return 0, err
	}
	return int64(v.Len()), nil
}

var (
	handler      = &memHandler{}
	registerOnce sync.Once
	registerErr  error
)

func ensureRegistered() error {
	registerOnce.Do(func() {
		godal.RegisterAll()
		registerErr = godal.RegisterVSIHandler(vsiPrefix, handler)
	})
	return registerErr
}
