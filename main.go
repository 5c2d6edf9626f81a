package main

import (
	storageengine "PageKit/storage_engine"
	"PageKit/storage_engine/access/heapfile"
	"PageKit/types"
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const helpText = `commands:
  create <name> <file-id>        open a heap file, creating it if needed
  insert <text>                  insert a record
  get <page> <slot>              print a record
  update <page> <slot> <text>    replace a record (it may move)
  delete <page> <slot>           delete a record
  scan                           print every record
  dump <page>                    describe a page
  stats                          buffer pool statistics
  exit`

var errNoFile = errors.New("no heap file open, use: create <name> <file-id>")

type session struct {
	se  *storageengine.StorageEngine
	hf  *heapfile.HeapFile
	out io.Writer
}

func main() {
	dir := flag.String("data", storageengine.DefaultBaseDir, "Data directory path")
	pool := flag.Int("pool", storageengine.DefaultBufferPoolCapacity, "Buffer pool capacity in pages")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	se, err := storageengine.NewStorageEngine(storageengine.Config{
		BaseDir:            *dir,
		BufferPoolCapacity: *pool,
		Logger:             logger,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := se.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	s := &session{se: se, out: os.Stdout}
	scanner := bufio.NewScanner(os.Stdin)
	// REPL
	for {
		fmt.Print("db> ")

		if !scanner.Scan() { // Ctrl+D pressed
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "exit") {
			break
		}
		if line == "" {
			continue
		}

		if err := s.execute(line); err != nil {
			fmt.Println("Error:", err)
		}
	}
}

func (s *session) execute(line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "create":
		return s.create(strings.Fields(rest))
	case "stats":
		st := s.se.BufferPool.GetStats()
		fmt.Fprintf(s.out, "pages=%d/%d pinned=%d dirty=%d hit_rate=%.2f\n",
			st.TotalPages, st.Capacity, st.PinnedPages, st.DirtyPages, st.HitRate)
		return nil
	}

	if s.hf == nil {
		return errNoFile
	}

	switch strings.ToLower(cmd) {
	case "insert":
		if rest == "" {
			return errors.New("usage: insert <text>")
		}
		ptr, err := s.hf.InsertRecord([]byte(rest))
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "inserted %s\n", ptr)
	case "get":
		ptr, _, err := s.pointer(rest, false)
		if err != nil {
			return err
		}
		data, err := s.hf.GetRecord(ptr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s %q\n", ptr, data)
	case "update":
		ptr, text, err := s.pointer(rest, true)
		if err != nil {
			return err
		}
		moved, err := s.hf.UpdateRecord(ptr, []byte(text))
		if err != nil {
			return err
		}
		if moved != ptr {
			fmt.Fprintf(s.out, "updated, moved to %s\n", moved)
		} else {
			fmt.Fprintf(s.out, "updated %s\n", ptr)
		}
	case "delete":
		ptr, _, err := s.pointer(rest, false)
		if err != nil {
			return err
		}
		if err := s.hf.DeleteRecord(ptr); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "deleted %s\n", ptr)
	case "scan":
		n := 0
		err := s.hf.Scan(func(ptr types.RowPointer, data []byte) error {
			n++
			fmt.Fprintf(s.out, "%s %q\n", ptr, data)
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "(%d records)\n", n)
	case "dump":
		pageNum, err := parseUint32(rest)
		if err != nil {
			return fmt.Errorf("usage: dump <page>: %w", err)
		}
		return s.hf.DumpPage(s.out, types.PageNum(pageNum))
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (s *session) create(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: create <name> <file-id>")
	}
	fileID, err := parseUint32(args[1])
	if err != nil {
		return fmt.Errorf("bad file id: %w", err)
	}
	hf, err := s.se.OpenHeapFile(args[0], fileID)
	if err != nil {
		return err
	}
	s.hf = hf

	n, err := hf.NumPages()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "using %s as file %d at %s (%d page(s))\n", hf.Name(), hf.FileID(), hf.Path(), n)
	return nil
}

// pointer parses "<page> <slot>" and, when withText is set, the rest of the
// line after them. Fields may be separated by any run of blanks.
func (s *session) pointer(args string, withText bool) (types.RowPointer, string, error) {
	usage := errors.New("expected <page> <slot>")
	if withText {
		usage = errors.New("expected <page> <slot> <text>")
	}

	pageField, rest := cutField(args)
	slotField, text := cutField(rest)
	if slotField == "" || (withText && text == "") || (!withText && text != "") {
		return types.RowPointer{}, "", usage
	}

	pageNum, err := parseUint32(pageField)
	if err != nil {
		return types.RowPointer{}, "", fmt.Errorf("bad page: %w", err)
	}
	slot, err := parseUint32(slotField)
	if err != nil {
		return types.RowPointer{}, "", fmt.Errorf("bad slot: %w", err)
	}

	ptr := types.RowPointer{FileID: s.hf.FileID(), PageNumber: types.PageNum(pageNum), SlotID: types.SlotID(slot)}
	return ptr, text, nil
}

// cutField splits off the first blank-separated field and returns it with
// the remainder, both trimmed of surrounding blanks.
func cutField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	return uint32(v), err
}
