package heapfile

import (
	"PageKit/storage_engine/access/heappage"
	"PageKit/types"
	"fmt"
	"io"
	"os"
	"strings"
)

/*
Offline inspection of a .heap file. The file is read straight from disk,
without a disk manager or buffer pool, so it can look at files another
process left behind (or broke).
*/

// PageReport describes one page image of a heap file.
type PageReport struct {
	PageNum     types.PageNum
	Header      heappage.Header
	Tombstones  uint32
	Fingerprint uint64
	// Invalid is the Validate error, nil for a well-formed page.
	Invalid error
	Page    *heappage.HeapPage
}

// InspectHeapFile reads every page of the file at path.
func InspectHeapFile(path string) ([]PageReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heap file: %w", err)
	}
	if len(raw)%types.PageSize != 0 {
		return nil, fmt.Errorf("heap file %s size %d is not a multiple of page size %d", path, len(raw), types.PageSize)
	}

	reports := make([]PageReport, 0, len(raw)/types.PageSize)
	for off := 0; off < len(raw); off += types.PageSize {
		hp, err := heappage.Wrap(raw[off : off+types.PageSize])
		if err != nil {
			return nil, err
		}
		reports = append(reports, PageReport{
			PageNum:     types.PageNum(off / types.PageSize),
			Header:      hp.Header(),
			Tombstones:  hp.InvalidCount(),
			Fingerprint: hp.Fingerprint(),
			Invalid:     hp.Validate(),
			Page:        hp,
		})
	}
	return reports, nil
}

// ChainOrder follows next links from page 0 and checks every prev link on
// the way. It returns the pages in chain order.
func ChainOrder(reports []PageReport) ([]types.PageNum, error) {
	if len(reports) == 0 {
		return nil, nil
	}

	order := make([]types.PageNum, 0, len(reports))
	prev := types.InvalidPageNum
	for cur := types.PageNum(0); cur != types.InvalidPageNum; {
		if int(cur) >= len(reports) {
			return order, fmt.Errorf("page %d links to missing page %d", prev, cur)
		}
		if len(order) == len(reports) {
			return order, fmt.Errorf("page chain loops back to page %d", cur)
		}
		h := reports[cur].Header
		if h.PrevPage != prev {
			return order, fmt.Errorf("page %d has prev=%d, expected %d", cur, h.PrevPage, prev)
		}
		order = append(order, cur)
		prev, cur = cur, h.NextPage
	}
	if len(order) != len(reports) {
		return order, fmt.Errorf("chain reaches %d of %d pages", len(order), len(reports))
	}
	return order, nil
}

// InspectHeapFileTo writes a plain-text dump of the file at path to w.
func InspectHeapFileTo(w io.Writer, path string) error {
	reports, err := InspectHeapFile(path)
	if err != nil {
		return err
	}

	var werr error
	p := func(format string, args ...any) {
		if werr == nil {
			_, werr = fmt.Fprintf(w, format, args...)
		}
	}

	p("Heap file %s: %d page(s)\n", path, len(reports))
	order, err := ChainOrder(reports)
	chain := make([]string, len(order))
	for i, n := range order {
		chain[i] = fmt.Sprintf("%d", n)
	}
	p("Chain: %s\n", strings.Join(chain, " -> "))
	if err != nil {
		p("Chain error: %v\n", err)
	}

	for _, r := range reports {
		p("\n--- page %d ---\n", r.PageNum)
		if werr != nil {
			return werr
		}
		if err := r.Page.Dump(w); err != nil {
			return err
		}
	}
	return werr
}
