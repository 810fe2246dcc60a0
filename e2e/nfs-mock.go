package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	baseDir  = flag.String("dir", "/data/mount", "NFS mounted directory to generate traffic in")
	files    = flag.Int("files", 50, "number of files to write and read back")
	size     = flag.Int("size", 64<<10, "bytes per file")
	interval = flag.Duration("interval", time.Second, "pause between operations")
)

func simulateNFSRead(filename string) {
	path := filepath.Join(*baseDir, filename)
	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Error reading file %s: %v", filename, err)
		return
	}
	log.Printf("Read %d bytes from %s", len(content), filename)
}

func simulateNFSWrite(filename string, content []byte) {
	path := filepath.Join(*baseDir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Printf("Error writing to file %s: %v", filename, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(content); err != nil {
		log.Printf("Error writing to file %s: %v", filename, err)
		return
	}
	// 强制落盘, 确保服务端收到 WRITE 而不是停留在客户端缓存
	if err := f.Sync(); err != nil {
		log.Printf("Error syncing file %s: %v", filename, err)
		return
	}
	log.Printf("Wrote %d bytes to %s", len(content), filename)
}

func main() {
	flag.Parse()

	// 创建基础目录
	if err := os.MkdirAll(*baseDir, 0755); err != nil {
		log.Fatalf("Error creating base directory: %v", err)
	}

	content := make([]byte, *size)
	if _, err := rand.Read(content); err != nil {
		log.Fatalf("Error generating content: %v", err)
	}

	// 模拟NFS操作
	for i := 0; i < *files; i++ {
		name := fmt.Sprintf("file_%d.bin", i)
		simulateNFSWrite(name, content)
		time.Sleep(*interval)

		simulateNFSRead(name)
		time.Sleep(*interval)
	}

	log.Println("NFS traffic generation completed")
}
