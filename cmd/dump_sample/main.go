// dump_sample runs the seed and the heap file inspector, writing all output to
// cmd/sample_run_output.txt. Run from repo root: go run ./cmd/dump_sample
package main

import (
	"PageKit/storage_engine/access/heapfile"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const (
	baseDir    = "pagekit_data"
	outputFile = "cmd/sample_run_output.txt"
)

func main() {
	outPath := outputFile
	// If run from cmd/dump_sample, output next to binary
	if _, err := os.Stat("cmd"); os.IsNotExist(err) {
		outPath = "sample_run_output.txt"
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	root := repoRoot()
	dataDir := filepath.Join(root, baseDir)

	// 1) Run seed: capture stdout/stderr to file
	fmt.Fprintln(f, "========== SEED (page walkthrough, heap file demo) ==========")
	cmd := exec.Command("go", "run", "./cmd/seed", "-data", dataDir)
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Dir = root
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(f, "seed exited with error: %v\n", err)
	}

	// 2) Dump every heap file the seed left behind
	paths, _ := filepath.Glob(filepath.Join(dataDir, "*.heap"))
	for _, path := range paths {
		fmt.Fprintf(f, "\n========== INSPECT %s ==========\n", filepath.Base(path))
		if err := heapfile.InspectHeapFileTo(f, path); err != nil {
			fmt.Fprintf(f, "inspect error: %v\n", err)
		}
	}

	fmt.Printf("Output written to %s\n", outPath)
}

func repoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
