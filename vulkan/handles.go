package vulkan

// table maps driver handles of one kind to native objects. Handles start at
// 1 and are never reused, so a stale handle misses instead of aliasing.
type table[H ~uint64, V any] struct {
	last H
	m    map[H]V
}

func (t *table[H, V]) add(v V) H {
	if t.m == nil {
		t.m = make(map[H]V)
	}
	t.last++
	t.m[t.last] = v
	return t.last
}

func (t *table[H, V]) get(h H) (V, bool) {
	v, ok := t.m[h]
	return v, ok
}

// lookup returns the native object of h or its zero value.
func (t *table[H, V]) lookup(h H) V {
	return t.m[h]
}

func (t *table[H, V]) remove(h H) (V, bool) {
	v, ok := t.m[h]
	if ok {
		delete(t.m, h)
	}
	return v, ok
}

func (t *table[H, V]) len() int { return len(t.m) }
