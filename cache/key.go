package cache

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// CacheKey identifies one cached invocation: statement id, pagination, final
// SQL, every bound value, and the environment id, folded into a hash list.
// Slices and arrays update element-wise, so an array and a slice holding the
// same elements produce equal keys.
type CacheKey struct {
	multiplier int64
	hashcode   int64
	checksum   int64
	count      int
	parts      []any
}

// NewCacheKey returns an empty key updated with the given parts.
func NewCacheKey(parts ...any) *CacheKey {
	k := &CacheKey{multiplier: 37, hashcode: 17}
	for _, p := range parts {
		k.Update(p)
	}
	return k
}

// Update folds one value into the key. Sequences fold per element.
func (k *CacheKey) Update(obj any) {
	if obj != nil {
		rv := reflect.ValueOf(obj)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			if _, isBytes := obj.([]byte); !isBytes {
				for i := 0; i < rv.Len(); i++ {
					k.doUpdate(rv.Index(i).Interface())
				}
				return
			}
		}
	}
	k.doUpdate(obj)
}

func (k *CacheKey) doUpdate(obj any) {
	base := hashOf(obj)
	k.count++
	k.checksum += base
	base *= int64(k.count)
	k.hashcode = k.multiplier*k.hashcode + base
	k.parts = append(k.parts, obj)
}

// Equals reports deep equality with another key.
func (k *CacheKey) Equals(o *CacheKey) bool {
	if o == nil || k.hashcode != o.hashcode || k.checksum != o.checksum || k.count != o.count {
		return false
	}
	for i := range k.parts {
		if !reflect.DeepEqual(k.parts[i], o.parts[i]) {
			return false
		}
	}
	return true
}

// String renders the canonical form used as the storage key.
func (k *CacheKey) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d", k.hashcode, k.checksum)
	for _, p := range k.parts {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

func hashOf(obj any) int64 {
	switch v := obj.(type) {
	case nil:
		return 1
	case bool:
		if v {
			return 1231
		}
		return 1237
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Float64bits(v))
	case float32:
		return int64(math.Float32bits(v))
	case string:
		return stringHash(v)
	case []byte:
		return stringHash(string(v))
	case time.Time:
		return v.UnixNano()
	default:
		return stringHash(fmt.Sprintf("%v", obj))
	}
}

func stringHash(s string) int64 {
	var h int64
	for i := 0; i < len(s); i++ {
		h = 31*h + int64(s[i])
	}
	return h
}
