package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// drag-metrics reads service logs on stdin and writes a JSON summary of the
// drag-end observability events.
func main() {
	outPath := flag.String("out", "", "path to write the JSON summary")
	flag.Parse()
	if *outPath == "" {
		log.Fatal("-out is required")
	}

	c := newCollector()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		c.ingest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read logs: %v", err)
	}

	summary := c.summary()
	data, err := sonic.ConfigStd.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("encode summary: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}
	if err := os.WriteFile(*outPath, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("write summary: %v", err)
	}
	fmt.Println(summary.ShortString())
}
