package transcript

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"captiocr/src/dedup"
)

var blockStamp = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\]\s?(.*)$`)

// Block is one timestamped entry read back from a capture file. Lines that
// follow a stamped line without their own stamp belong to the same block.
type Block struct {
	Stamp string
	Text  string
}

// ReadCaptureFile parses the [HH:MM:SS] blocks of a capture file, skipping
// the header.
func ReadCaptureFile(path string) ([]Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []Block
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := blockStamp.FindStringSubmatch(line); m != nil {
			blocks = append(blocks, Block{Stamp: m[1], Text: strings.TrimSpace(m[2])})
			continue
		}
		if len(blocks) > 0 && strings.TrimSpace(line) != "" {
			last := &blocks[len(blocks)-1]
			last.Text = strings.TrimSpace(last.Text + " " + strings.TrimSpace(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return blocks, nil
}

// FilterBlocks re-runs blocks through a fresh dedup window and keeps only
// the residue of each. Blocks that contribute nothing are dropped. Blocks
// were cleaned when captured, so only whitespace is collapsed here: a short
// residue such as "ld" is text, not noise.
func FilterBlocks(blocks []Block, opts dedup.Options) []Block {
	w := dedup.New(opts)
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		residue := strings.TrimSpace(w.Submit(strings.Join(strings.Fields(b.Text), " ")))
		if residue == "" {
			continue
		}
		out = append(out, Block{Stamp: b.Stamp, Text: residue})
	}
	return out
}

// ProcessedName returns the output name for post-processing path.
func ProcessedName(path, customName string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if customName = strings.TrimSpace(filepath.Base(customName)); customName != "" && customName != "." {
		base = customName + "_" + base
	}
	return base + ProcessedSuffix + ".txt"
}

// ProcessFile removes duplicate blocks from an existing capture file and
// writes <name>_processed.txt next to it.
func ProcessFile(path, customName string, opts dedup.Options) (string, error) {
	blocks, err := ReadCaptureFile(path)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return "", fmt.Errorf("no text blocks found in %s", path)
	}

	unique := FilterBlocks(blocks, opts)

	var b strings.Builder
	for _, blk := range unique {
		fmt.Fprintf(&b, "[%s] %s\n", blk.Stamp, blk.Text)
	}

	out := filepath.Join(filepath.Dir(path), ProcessedName(path, customName))
	if err := os.WriteFile(out, []byte(b.String()), 0o644); err != nil {
		return "", &PersistenceError{Path: out, Err: err}
	}
	log.Printf("Transcript: processed %s -> %s (%d -> %d blocks)", path, out, len(blocks), len(unique))
	return out, nil
}
