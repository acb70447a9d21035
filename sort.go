package annbuf

import (
	"sort"
	"sync"

	"github.com/pktlabs/annbuf/internal/mathutil"
)

// Below this many records the fan-out overhead beats any parallel win.
const minParallelSort = 4096

// sortByPfx sorts data ascending by HashPfx using up to workers goroutines:
// chunk-sort then pairwise merge passes, each pass merging its pairs in
// parallel. Unstable on purpose: equal keys carry no meaningful order.
func sortByPfx(data []AnnData, workers int) {
	if workers <= 1 || len(data) < minParallelSort {
		sort.Slice(data, func(i, j int) bool { return data[i].HashPfx < data[j].HashPfx })
		return
	}

	// Chunk offsets: offs[i]..offs[i+1] is chunk i. The last chunk absorbs
	// the remainder.
	chunk := mathutil.CeilDiv(len(data), workers)
	offs := make([]int, 0, workers+1)
	for o := 0; o < len(data); o += chunk {
		offs = append(offs, o)
	}
	offs = append(offs, len(data))

	var wg sync.WaitGroup
	for i := 0; i+1 < len(offs); i++ {
		wg.Add(1)
		go func(part []AnnData) {
			defer wg.Done()
			sort.Slice(part, func(i, j int) bool { return part[i].HashPfx < part[j].HashPfx })
		}(data[offs[i]:offs[i+1]])
	}
	wg.Wait()

	// Merge sorted chunks pairwise, ping-ponging between data and scratch
	// until one run remains.
	scratch := make([]AnnData, len(data))
	src, dst := data, scratch
	for len(offs) > 2 {
		next := make([]int, 0, len(offs)/2+2)
		var mg sync.WaitGroup
		i := 0
		for ; i+2 < len(offs); i += 2 {
			a, b, c := offs[i], offs[i+1], offs[i+2]
			next = append(next, a)
			mg.Add(1)
			go func(a, b, c int) {
				defer mg.Done()
				mergeByPfx(src[a:b], src[b:c], dst[a:c])
			}(a, b, c)
		}
		if i+2 == len(offs) {
			// Odd run out: carry it over unmerged.
			a, b := offs[i], offs[i+1]
			next = append(next, a)
			copy(dst[a:b], src[a:b])
		}
		next = append(next, len(data))
		mg.Wait()
		src, dst = dst, src
		offs = next
	}

	if &src[0] != &data[0] {
		copy(data, src)
	}
}

// mergeByPfx merges two sorted runs into dst, len(dst) == len(a)+len(b).
func mergeByPfx(a, b, dst []AnnData) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if b[j].HashPfx < a[i].HashPfx {
			dst[k] = b[j]
			j++
		} else {
			dst[k] = a[i]
			i++
		}
		k++
	}
	copy(dst[k:], a[i:])
	copy(dst[k+len(a)-i:], b[j:])
}
