package store

import (
	"io/fs"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
)

// PebbleMetrics is a compact view of database health used by the auditor
// and the sensor endpoints.
type PebbleMetrics struct {
	DiskBytes         uint64
	WALBytes          uint64
	L0Files           int
	L0Bytes           uint64
	CompactionBacklog uint64
}

// GetPebbleMetrics returns best-effort metrics about the pebble DB. It
// computes the on-disk size of the DB directory and enriches the view
// from pebble's own metrics where field names can be matched.
func (s *Store) GetPebbleMetrics() PebbleMetrics {
	var m PebbleMetrics
	if !s.Ready() || s.path == "" {
		return m
	}
	var total uint64
	_ = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		total += uint64(fi.Size())
		return nil
	})
	m.DiskBytes = total
	if metrics := s.db.Metrics(); metrics != nil {
		flat := make(map[string]float64)
		flattenStruct("", reflect.ValueOf(metrics), flat)
		if v := findMetric(flat, `(?i)wal.*(size|bytes|total)`); v > 0 {
			m.WALBytes = uint64(v)
		}
		if v := findMetric(flat, `(?i)l0.*files|(?i)level0.*files`); v > 0 {
			m.L0Files = int(v)
		}
		if v := findMetric(flat, `(?i)l0.*bytes|(?i)level0.*bytes`); v > 0 {
			m.L0Bytes = uint64(v)
		}
		if v := findMetric(flat, `(?i)compaction.*backlog|(?i)compaction.*pending.*bytes`); v > 0 {
			m.CompactionBacklog = uint64(v)
		}
	}
	return m
}

func findMetric(flat map[string]float64, pattern string) float64 {
	re := regexp.MustCompile(pattern)
	for k, v := range flat {
		if re.MatchString(k) {
			return v
		}
		// also check key tokens
		if re.MatchString(strings.ReplaceAll(k, ".", "_")) {
			return v
		}
	}
	return 0
}

// flattenStruct walks a reflect.Value of a struct or pointer and fills
// out with numeric fields keyed by dotted path. Reflection keeps this
// tolerant of pebble metric struct changes between versions.
func flattenStruct(prefix string, v reflect.Value, out map[string]float64) {
	if !v.IsValid() {
		return
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		name := t.Field(i).Name
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		fv := f
		for fv.Kind() == reflect.Interface {
			if fv.IsNil() {
				fv = reflect.Value{}
				break
			}
			fv = fv.Elem()
		}
		if !fv.IsValid() {
			continue
		}
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out[key] = float64(fv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out[key] = float64(fv.Uint())
		case reflect.Float32, reflect.Float64:
			out[key] = fv.Float()
		case reflect.Struct, reflect.Ptr:
			flattenStruct(key, fv, out)
		}
	}
}
