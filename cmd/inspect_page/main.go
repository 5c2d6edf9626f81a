// Inspect a heap file (.heap): header, slot directory and page chain of every page.
// Usage: go run ./cmd/inspect_page [-slots=false] <path-to-.heap>
// Example: go run ./cmd/inspect_page pagekit_data/demo_1.heap
package main

import (
	"PageKit/storage_engine/access/heapfile"
	"PageKit/types"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pageStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	badPageStyle = pageStyle.
			BorderForeground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#AAAAAA"})

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

func main() {
	showSlots := flag.Bool("slots", true, "List every slot of each page")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-slots=false] <file.heap>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s pagekit_data/demo_1.heap\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	path := flag.Arg(0)
	reports, err := heapfile.InspectHeapFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s  %d page(s), %s", path, len(reports),
		humanize.IBytes(uint64(len(reports))*types.PageSize))))
	fmt.Println(renderChain(reports))

	broken := 0
	for _, r := range reports {
		fmt.Println(renderPage(r, *showSlots))
		if r.Invalid != nil {
			broken++
		}
	}
	if broken > 0 {
		fmt.Println(errorStyle.Render(fmt.Sprintf("%d invalid page(s)", broken)))
		os.Exit(2)
	}
}

func renderChain(reports []heapfile.PageReport) string {
	order, err := heapfile.ChainOrder(reports)
	links := make([]string, len(order))
	for i, n := range order {
		links[i] = fmt.Sprintf("%d", n)
	}
	line := labelStyle.Render("chain ") + strings.Join(links, " → ")
	if err != nil {
		line += "  " + errorStyle.Render(err.Error())
	}
	return line
}

func renderPage(r heapfile.PageReport, showSlots bool) string {
	h := r.Header
	var b strings.Builder

	row := func(label string, format string, args ...any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	row("page", "%d  fingerprint %016x", r.PageNum, r.Fingerprint)
	row("links", "prev=%s next=%s", pageNumString(h.PrevPage), pageNumString(h.NextPage))
	row("slots", "%d live, %d tombstoned, %d allocated", h.Size, r.Tombstones, h.Capacity)
	row("free space", "[%d, %d)  %s", h.FreeSpaceBegin, h.FreeSpaceEnd, freeGap(h.FreeSpaceBegin, h.FreeSpaceEnd))

	if showSlots {
		for i := uint32(0); i < r.Page.SlotCapacity(); i++ {
			e, _ := r.Page.EntryAt(i)
			if !e.IsValid() {
				row(fmt.Sprintf("  slot %d", i), "tombstone")
				continue
			}
			row(fmt.Sprintf("  slot %d", i), "offset=%d length=%s", e.Offset, humanize.IBytes(uint64(e.Length)))
		}
	}

	style := pageStyle
	if r.Invalid != nil {
		b.WriteString(errorStyle.Render("INVALID: " + r.Invalid.Error()))
		style = badPageStyle
	}
	return style.Render(strings.TrimRight(b.String(), "\n"))
}

func freeGap(begin, end uint32) string {
	if end < begin {
		return "negative"
	}
	return humanize.IBytes(uint64(end - begin))
}

func pageNumString(n types.PageNum) string {
	if n == types.InvalidPageNum {
		return "none"
	}
	return fmt.Sprintf("%d", n)
}
