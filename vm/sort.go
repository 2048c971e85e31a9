package vm

import "github.com/pkg/errors"

// arrayLen and arrayGet/arraySwap let Bsearch/Qsort operate uniformly over
// a Queue or a String, mirroring the canonical implementation's
// "Array_*" helpers.
func arrayLen(v *Value) int {
	if v.Tag == TagString {
		return len(v.Str)
	}
	return len(v.Queue)
}

func arrayGet(v *Value, i int) *Value {
	if v.Tag == TagString {
		return NewChar(v, i)
	}
	e := v.Queue[i]
	e.Retain()
	return e
}

func arraySwap(v *Value, a, b int) {
	if v.Tag == TagString {
		v.Str[a], v.Str[b] = v.Str[b], v.Str[a]
		return
	}
	v.Queue[a], v.Queue[b] = v.Queue[b], v.Queue[a]
}

// binarySearch implements Bsearch(queue|string, key, comparator): the
// comparator is called as comparator(key, element) -> Number, with the
// conventional sign telling which half to continue searching, per the
// canonical VM_BSearch/VM_Vrt (Loc 0 = key, Loc 1 = element). The
// comparator may be a Function or a Pointer to one.
func (m *Machine) binarySearch() error {
	cmp := m.pop()
	key := m.pop()
	arr := m.pop()
	if arr.Tag != TagQueue && arr.Tag != TagString {
		m.kill(cmp)
		m.kill(key)
		m.kill(arr)
		return errors.New("Bsearch expects either String or Queue")
	}
	fn := cmp
	if fn.Tag == TagPointer {
		fn = fn.Ptr
	}
	if fn.Tag != TagFunction {
		m.kill(cmp)
		m.kill(key)
		m.kill(arr)
		return m.typeErr("Function", fn)
	}
	lo, hi := 0, arrayLen(arr)-1
	var found *Value
	for lo <= hi {
		mid := (lo + hi) / 2
		elem := arrayGet(arr, mid)
		key.Retain()
		r, err := m.callBuiltin(cmp, []*Value{key, elem})
		if err != nil {
			m.kill(cmp)
			m.kill(key)
			m.kill(arr)
			return err
		}
		n, err := m.requireNumber(r)
		m.kill(r)
		if err != nil {
			m.kill(cmp)
			m.kill(key)
			m.kill(arr)
			return err
		}
		if n == 0 {
			found = NewPointer(arrayGet(arr, mid))
			m.track(found)
			break
		} else if n < 0 {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	m.kill(cmp)
	m.kill(key)
	m.kill(arr)
	if found == nil {
		m.pushFresh(NewNull())
	} else {
		m.push(found)
	}
	return nil
}

// rangedSort is the canonical implementation's Lomuto-style recursive
// partition: comparator(a, b) -> Bool decides whether element i should
// swap forward past the running pivot boundary.
func (m *Machine) rangedSort(arr, cmp *Value, left, right int) error {
	if left >= right {
		return nil
	}
	arraySwap(arr, left, (left+right)/2)
	last := left
	for i := left + 1; i <= right; i++ {
		a := arrayGet(arr, i)
		b := arrayGet(arr, left)
		r, err := m.callBuiltin(cmp, []*Value{a, b})
		if err != nil {
			return err
		}
		swap, err := m.requireBool(r)
		m.kill(r)
		if err != nil {
			return err
		}
		if swap {
			last++
			arraySwap(arr, last, i)
		}
	}
	arraySwap(arr, left, last)
	if err := m.rangedSort(arr, cmp, left, last-1); err != nil {
		return err
	}
	return m.rangedSort(arr, cmp, last+1, right)
}

// quicksort implements Qsort(queue|string, comparator): sorts arr in place.
// The comparator may be a Function or a Pointer to one.
func (m *Machine) quicksort() error {
	cmp := m.pop()
	arr := m.pop()
	if arr.Tag != TagQueue && arr.Tag != TagString {
		m.kill(cmp)
		m.kill(arr)
		return errors.New("Qsort expects either String or Queue")
	}
	fn := cmp
	if fn.Tag == TagPointer {
		fn = fn.Ptr
	}
	if fn.Tag != TagFunction {
		m.kill(cmp)
		m.kill(arr)
		return m.typeErr("Function", fn)
	}
	if fn.Fn.Arity != 2 {
		m.kill(cmp)
		m.kill(arr)
		return errors.Errorf("expected 2 arguments for Qsort's comparator but encountered %d arguments", fn.Fn.Arity)
	}
	if err := m.rangedSort(arr, cmp, 0, arrayLen(arr)-1); err != nil {
		m.kill(cmp)
		m.kill(arr)
		return err
	}
	m.kill(cmp)
	m.kill(arr)
	m.pushFresh(NewNull())
	return nil
}
