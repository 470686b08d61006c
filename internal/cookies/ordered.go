package cookies

import "slices"

// orderedMap is a string-keyed map that iterates in first-insertion order.
// Overwriting a key keeps its position.
type orderedMap[V any] struct {
	keys  []string
	items map[string]V
}

func newOrderedMap[V any]() *orderedMap[V] {
	return &orderedMap[V]{items: make(map[string]V)}
}

func (m *orderedMap[V]) get(key string) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *orderedMap[V]) set(key string, value V) {
	if _, ok := m.items[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.items[key] = value
}

func (m *orderedMap[V]) delete(key string) bool {
	if _, ok := m.items[key]; !ok {
		return false
	}
	delete(m.items, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
	return true
}

func (m *orderedMap[V]) len() int {
	return len(m.keys)
}

// each visits entries in order until fn returns false. fn may delete the
// entry it is visiting.
func (m *orderedMap[V]) each(fn func(key string, value V) bool) {
	for _, key := range slices.Clone(m.keys) {
		v, ok := m.items[key]
		if !ok {
			continue
		}
		if !fn(key, v) {
			return
		}
	}
}
