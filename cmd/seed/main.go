// Seed program: walks one heap page through insert/update/delete, then fills a
// heap file "demo" with enough records to span several linked pages.
// Run: go run ./cmd/seed
// Then inspect: go run ./cmd/inspect_page pagekit_data/demo_1.heap
package main

import (
	storageengine "PageKit/storage_engine"
	"PageKit/storage_engine/access/heappage"
	"PageKit/types"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
)

func main() {
	dir := flag.String("data", storageengine.DefaultBaseDir, "Data directory path")
	fresh := flag.Bool("fresh", true, "Remove the data directory first")
	flag.Parse()

	pageTutorial()

	if *fresh {
		if err := os.RemoveAll(*dir); err != nil {
			log.Fatalf("clean data dir: %v", err)
		}
	}
	if err := seedHeapFile(*dir); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func pageTutorial() {
	hp, err := heappage.Wrap(make([]byte, types.PageSize))
	if err != nil {
		log.Fatalf("wrap: %v", err)
	}
	hp.Initialize()

	fmt.Println("--------\nHere's what a heap page looks like right after initializing:")
	hp.Dump(os.Stdout)

	ids := make([]types.SlotID, 0, 3)
	for _, s := range []string{"Hello", "Heap", "Page"} {
		slot, err := hp.Insert([]byte(s))
		if err != nil {
			log.Fatalf("insert %q: %v", s, err)
		}
		ids = append(ids, slot)
	}
	fmt.Println("--------\nAfter inserting three records:")
	hp.Dump(os.Stdout)

	e, _ := hp.SlotEntryAt(ids[1])
	fmt.Printf("--------\nSlot %d holds <offset, length> = {%d,%d}\n", ids[1], e.Offset, e.Length)

	if err := hp.Delete(ids[1]); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("--------\nAfter deleting the middle record (records compacted, slot tombstoned):")
	hp.Dump(os.Stdout)

	if err := hp.Update(ids[0], []byte("Hello, slotted world")); err != nil {
		log.Fatalf("update: %v", err)
	}
	fmt.Println("--------\nAfter growing the first record in place:")
	hp.Dump(os.Stdout)

	fmt.Print("--------\nScanning live slots:")
	scanner := heappage.NewScanner(hp)
	for slot := scanner.Next(); slot != types.InvalidSlotID; slot = scanner.Next() {
		data, _ := hp.Lookup(slot)
		fmt.Printf(" %d=%q", slot, data)
	}
	fmt.Println()
}

func seedHeapFile(dir string) error {
	se, err := storageengine.NewStorageEngine(storageengine.Config{
		BaseDir:            dir,
		BufferPoolCapacity: 4,
		Logger:             slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	})
	if err != nil {
		return err
	}
	defer se.Close()

	hf, err := se.OpenHeapFile("demo", 1)
	if err != nil {
		return err
	}

	fmt.Println("\n--------\nFilling heap file demo with 40 records of 400 bytes...")
	var ptrs []types.RowPointer
	for i := 0; i < 40; i++ {
		body := fmt.Sprintf("record-%02d:%s", i, strings.Repeat(string(rune('a'+i%26)), 390))
		ptr, err := hf.InsertRecord([]byte(body))
		if err != nil {
			return err
		}
		ptrs = append(ptrs, ptr)
	}

	for i := 0; i < len(ptrs); i += 5 {
		if err := hf.DeleteRecord(ptrs[i]); err != nil {
			return err
		}
	}
	moved, err := hf.UpdateRecord(ptrs[1], []byte(strings.Repeat("G", 2000)))
	if err != nil {
		return err
	}
	fmt.Printf("Deleted every fifth record; grew %s to 2000 bytes, now at %s\n", ptrs[1], moved)

	n, err := hf.NumPages()
	if err != nil {
		return err
	}
	live := 0
	if err := hf.Scan(func(types.RowPointer, []byte) error {
		live++
		return nil
	}); err != nil {
		return err
	}
	fmt.Printf("Heap file %s: %d pages, %d live records\n", hf.Path(), n, live)

	if err := hf.DumpPage(os.Stdout, 0); err != nil {
		return err
	}
	return hf.Flush()
}
