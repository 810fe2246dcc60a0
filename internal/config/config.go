package config

import (
	"os"
	"path/filepath"
)

// ProcPath 是访问 /proc 文件系统的路径, 容器内运行时通过 PROC_PATH 指向宿主机的 /proc
var ProcPath = procPath()

func procPath() string {
	if p := os.Getenv("PROC_PATH"); p != "" {
		return p
	}
	return "/proc"
}

func GetProcPath(path string) string {
	return filepath.Join(ProcPath, path)
}

// DefaultEtab is where nfs-utils keeps the active export table.
const DefaultEtab = "/var/lib/nfs/etab"

// ExportTables returns the export table files to consult, in order.
func (c *Configuration) ExportTables() []string {
	if c.Exports.Etab != "" {
		return []string{c.Exports.Etab}
	}
	return []string{DefaultEtab, GetProcPath("fs/nfsd/exports")}
}
