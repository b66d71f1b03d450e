package capsulenets

import (
	"reflect"
	"unsafe"
)

// MakeIterator makes a generic row iterator of a flat m x n image
func MakeIterator(image []float32, m, n int) (retVal [][]float32) {
	retVal = borrowIterator(m, n)
	for i := range retVal {
		start := i * n
		hdr := (*reflect.SliceHeader)(unsafe.Pointer(&retVal[i]))
		hdr.Data = uintptr(unsafe.Pointer(&image[start]))
		hdr.Len = n
		hdr.Cap = n
	}
	return
}
